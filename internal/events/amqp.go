// README: Mirrors domain events to a RabbitMQ topic exchange for audit consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

const DefaultExchange = "order.events"

// Channel is the subset of *amqp.Channel used by the mirror.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPMirror struct {
	ch       Channel
	exchange string
}

// NewAMQPMirror declares the durable topic exchange events are published to.
func NewAMQPMirror(ch Channel, exchange string) (*AMQPMirror, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPMirror{ch: ch, exchange: exchange}, nil
}

type envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

// Handle publishes e with the event name as routing key.
func (m *AMQPMirror) Handle(_ context.Context, e Event) error {
	body, err := json.Marshal(envelope{Event: e.Name(), OccurredAt: time.Now().UTC(), Payload: e})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.Name(), err)
	}
	err = m.ch.Publish(m.exchange, e.Name(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", e.Name(), err)
	}
	return nil
}
