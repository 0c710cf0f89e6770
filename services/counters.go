package services

import (
	"context"
	"log"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const unreadKeyPrefix = "unread:user:"

// CounterService ведет счетчики непрочитанных сообщений в Redis.
// Счетчики best-effort: без Redis сервис продолжает работать,
// источником правды остается реляционное хранилище
type CounterService struct {
	client *redis.Client
}

func NewCounterService(client *redis.Client) *CounterService {
	return &CounterService{client: client}
}

func unreadKey(userID int64) string {
	return unreadKeyPrefix + strconv.FormatInt(userID, 10)
}

// IncrUnread увеличивает счетчик непрочитанных для получателя
func (s *CounterService) IncrUnread(ctx context.Context, userID int64) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.client.Incr(ctx, unreadKey(userID)).Err(); err != nil {
		log.Printf("counter: failed to increment unread for user %d: %v", userID, err)
	}
}

// ResetUnread сбрасывает счетчик (пользователь прочитал диалог)
func (s *CounterService) ResetUnread(ctx context.Context, userID int64) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		log.Printf("counter: failed to reset unread for user %d: %v", userID, err)
	}
}

// GetUnread возвращает текущее значение счетчика, 0 если Redis недоступен
func (s *CounterService) GetUnread(ctx context.Context, userID int64) int64 {
	if s == nil || s.client == nil {
		return 0
	}
	val, err := s.client.Get(ctx, unreadKey(userID)).Int64()
	if err != nil {
		if err != redis.Nil {
			log.Printf("counter: failed to get unread for user %d: %v", userID, err)
		}
		return 0
	}
	return val
}
