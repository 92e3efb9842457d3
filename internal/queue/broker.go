package queue

import "context"

// Delivery is one broker message handed to the worker
type Delivery struct {
	Body        []byte
	Redelivered bool
	Ack         func() error
	Nack        func(requeue bool) error
}

// Publisher sends job messages to the broker
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Consumer streams job messages from the broker until ctx is done
type Consumer interface {
	Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error)
}
