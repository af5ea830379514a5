package ports

import (
	"context"

	"github.com/rabbitmq/amqp091-go"
)

// INotificationBus is the single outbound notification operation. Delivery is
// at-least-once and out-of-band; callers treat publish failures as warnings.
type INotificationBus interface {
	Publish(ctx context.Context, topic string, recipients []string, payload any) error
}

type ConsumeOptions struct {
	QueueDurable bool
	AutoAck      bool
	Prefetch     int
}

type IBrokerConsumer interface {
	Consume(ctx context.Context, queueName, bindingKey string, opts ConsumeOptions) (<-chan amqp091.Delivery, error)
}
