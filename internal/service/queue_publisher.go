// Package queue_publisher publishes auth domain events to RabbitMQ.
// Publishing is fire-and-forget: errors are logged and returned so callers
// can ignore failures without interrupting the request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	q "github.com/petlink-az/auth-service/internal/queue"
)

const (
	QueueUserRegistered = "auth.user.registered"
	QueueUserLoggedIn   = "auth.user.logged_in"
)

// Publisher publishes events over a RabbitMQ connection established per
// publish. Auth events are low-volume, so connection reuse is not worth the
// reconnect bookkeeping.
type Publisher struct {
	url string
	log zerolog.Logger
}

func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// PublishUserRegistered publishes a UserRegisteredEvent.
func (p *Publisher) PublishUserRegistered(ctx context.Context, ev q.UserRegisteredEvent) error {
	return p.publish(ctx, QueueUserRegistered, ev)
}

// PublishUserLoggedIn publishes a UserLoggedInEvent.
func (p *Publisher) PublishUserLoggedIn(ctx context.Context, ev q.UserLoggedInEvent) error {
	return p.publish(ctx, QueueUserLoggedIn, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	if p.url == "" {
		// Broker not configured; events are best-effort.
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
