package services

import (
	"log"
)

// Broker - абстракция fan-out: доставка события в набор каналов.
// Best-effort, без подтверждений и ретраев: запись в хранилище уже
// состоялась, отключившийся клиент дочитает тред при переподключении
type Broker interface {
	Publish(channels []string, event Event)
}

// FanoutBroker пушит события подписчикам локального реестра.
// Если настроен AMQP-relay, события идут через exchange, и подписчикам
// их раздает consumer (в том числе на других инстансах сервиса)
type FanoutBroker struct {
	registry *ChannelRegistry
	relay    *AMQPRelay
}

func NewFanoutBroker(registry *ChannelRegistry, relay *AMQPRelay) *FanoutBroker {
	return &FanoutBroker{registry: registry, relay: relay}
}

// Publish доставляет событие в каждый канал не более одного раза.
// Никогда не возвращает ошибку: сбой доставки не должен валить запрос
func (b *FanoutBroker) Publish(channels []string, event Event) {
	payload, err := event.Marshal()
	if err != nil {
		log.Println("fanout: failed to marshal event:", err)
		return
	}
	for _, channel := range channels {
		if b.relay != nil {
			if err := b.relay.Publish(channel, payload); err != nil {
				log.Printf("fanout: relay publish to %s failed: %v", channel, err)
			}
			continue
		}
		b.registry.Send(channel, payload)
	}
}
