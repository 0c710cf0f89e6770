package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPRelay ретранслирует события fan-out через topic exchange,
// чтобы подписчики на других инстансах сервиса тоже их получили.
// Семантика та же, что у локальной доставки: fire-and-forget
type AMQPRelay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// relayEnvelope - событие вместе с каналом назначения
type relayEnvelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// NewAMQPRelay инициализирует соединение и exchange
func NewAMQPRelay(url, exchange string) (*AMQPRelay, error) {
	if exchange == "" {
		exchange = "chat_events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	// Создаем exchange типа topic
	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Printf("AMQP relay initialized with URL: %s", url)
	return &AMQPRelay{conn: conn, channel: channel, exchange: exchange}, nil
}

// routingKey: "user:5" -> "user.5", "room:agronomy" -> "room.agronomy"
func routingKey(channel string) string {
	return strings.Replace(channel, ":", ".", 1)
}

// Publish отправляет событие канала в exchange
func (r *AMQPRelay) Publish(channel string, payload []byte) error {
	body, err := json.Marshal(relayEnvelope{Channel: channel, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return r.channel.PublishWithContext(context.Background(),
		r.exchange,
		routingKey(channel),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// StartConsumer запускает воркер, который слушает события exchange
// и пушит их локальным подписчикам через реестр каналов
func (r *AMQPRelay) StartConsumer(ctx context.Context, queueName string, registry *ChannelRegistry) error {
	q, err := r.channel.QueueDeclare(
		queueName,
		false, // durable: очередь живет вместе с инстансом
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	// Каждый инстанс получает все события и сам решает, кому они нужны
	if err := r.channel.QueueBind(
		q.Name,
		"#",
		r.exchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	msgs, err := r.channel.Consume(
		q.Name,
		"",
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var envelope relayEnvelope
				if err := json.Unmarshal(msg.Body, &envelope); err != nil {
					log.Println("Failed to unmarshal relay envelope:", err)
					continue
				}
				registry.Send(envelope.Channel, envelope.Payload)
			}
		}
	}()
	return nil
}

func (r *AMQPRelay) Close() {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
