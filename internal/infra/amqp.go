// README: RabbitMQ connection used by the event mirror.
package infra

import (
	"fmt"

	"github.com/streadway/amqp"
)

type Rabbit struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbit(url string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Rabbit{conn: conn, channel: ch}, nil
}

func (r *Rabbit) Channel() *amqp.Channel {
	return r.channel
}

func (r *Rabbit) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}
