package services

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ChannelConn - минимальный контракт соединения, *websocket.Conn ему
// удовлетворяет. Интерфейс нужен, чтобы тестировать реестр без сокетов
type ChannelConn interface {
	WriteMessage(messageType int, data []byte) error
}

// subscriber оборачивает соединение мьютексом записи: gorilla/websocket
// допускает только одного писателя на соединение, а публиковать могут
// несколько запросов одновременно. Один subscriber на соединение,
// в скольких бы каналах оно ни состояло
type subscriber struct {
	mu   sync.Mutex
	conn ChannelConn
	refs int
}

func (s *subscriber) write(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.TextMessage, payload)
}

// ChannelRegistry хранит живые соединения по именам каналов
// ("user:<id>", "room:<name>"). Одно соединение может состоять
// в нескольких каналах, в одном канале может быть много соединений
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string][]*subscriber
	subs     map[ChannelConn]*subscriber
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string][]*subscriber),
		subs:     make(map[ChannelConn]*subscriber),
	}
}

func (r *ChannelRegistry) Join(channel string, conn ChannelConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[conn]
	if !ok {
		sub = &subscriber{conn: conn}
		r.subs[conn] = sub
	}
	sub.refs++
	r.channels[channel] = append(r.channels[channel], sub)
}

func (r *ChannelRegistry) Leave(channel string, conn ChannelConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.channels[channel]
	for i, s := range subs {
		if s.conn == conn {
			r.channels[channel] = append(subs[:i], subs[i+1:]...)
			s.refs--
			if s.refs == 0 {
				delete(r.subs, conn)
			}
			break
		}
	}
	if len(r.channels[channel]) == 0 {
		delete(r.channels, channel)
	}
}

// Send пишет payload всем подписчикам канала. Список копируется под
// RLock, сами записи идут вне блокировки реестра и сериализуются
// мьютексом подписчика. Ошибки записи игнорируем: мертвое соединение
// снимет с учета его собственный read loop
func (r *ChannelRegistry) Send(channel string, payload []byte) {
	r.mu.RLock()
	subs := make([]*subscriber, len(r.channels[channel]))
	copy(subs, r.channels[channel])
	r.mu.RUnlock()
	for _, s := range subs {
		s.write(payload)
	}
}

// Subscribers возвращает число подписчиков канала (для метрик и тестов)
func (r *ChannelRegistry) Subscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}
