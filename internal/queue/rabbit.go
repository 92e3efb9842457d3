package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/invoice-notifier/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitBroker adapts the shared RabbitMQ client to Publisher and Consumer
type RabbitBroker struct {
	client   *rabbitmq.Client
	prefetch int
	logger   *slog.Logger
}

// NewRabbitBroker creates a broker over client. prefetch bounds unacknowledged
// deliveries per consumer.
func NewRabbitBroker(client *rabbitmq.Client, prefetch int, logger *slog.Logger) *RabbitBroker {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitBroker{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Publish sends body as a persistent message, retrying on channel errors
func (b *RabbitBroker) Publish(ctx context.Context, body []byte, contentType string) error {
	return b.client.PublishWithRetry(ctx, body, contentType)
}

// Consume starts a manual-ack consumer and forwards its deliveries
func (b *RabbitBroker) Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error) {
	if err := b.client.SetPrefetch(b.prefetch); err != nil {
		return nil, err
	}

	deliveries, err := b.client.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Warn("RabbitMQ delivery channel closed")
					return
				}
				select {
				case out <- toDelivery(d):
				case <-ctx.Done():
					// hand the message back so another consumer picks it up
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

func toDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Body:        d.Body,
		Redelivered: d.Redelivered,
		Ack:         func() error { return d.Ack(false) },
		Nack:        func(requeue bool) error { return d.Nack(false, requeue) },
	}
}
