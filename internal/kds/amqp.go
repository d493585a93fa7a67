package kds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roach88/galley/internal/domain"
)

// DefaultExchange is the topic exchange station views are published to.
const DefaultExchange = "galley.kds"

// RoutingKey is the routing key for a tenant's views: "kds.<tenant>".
func RoutingKey(tenant domain.TenantID) string {
	return "kds." + string(tenant)
}

// AMQPSink publishes views to a RabbitMQ topic exchange and waits for a
// publisher confirm on every message. Broker failures are reported as
// STORE_UNAVAILABLE so the dispatcher retries them.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string

	mu sync.Mutex // serializes publish + confirm
}

// DialAMQP connects, declares the exchange, and enables publisher confirms.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQPSink{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

// Name implements Sink.
func (s *AMQPSink) Name() string {
	return "amqp"
}

// Exchange returns the exchange views are published to.
func (s *AMQPSink) Exchange() string {
	return s.exchange
}

// Publish implements Sink.
func (s *AMQPSink) Publish(ctx context.Context, v View) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn.IsClosed() {
		return domain.NewStoreUnavailable("publish view", amqp.ErrClosed)
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(v.Tenant), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"tenant_id": string(v.Tenant),
			"version":   v.Version,
		},
		Body: body,
	})
	if err != nil {
		return domain.NewStoreUnavailable("publish view", err)
	}

	select {
	case conf, ok := <-s.acks:
		if !ok {
			return domain.NewStoreUnavailable("publish view", amqp.ErrClosed)
		}
		if !conf.Ack {
			return domain.NewStoreUnavailable("publish view", errors.New("broker nacked view"))
		}
		return nil
	case <-ctx.Done():
		return domain.NewStoreUnavailable("publish view", ctx.Err())
	}
}

// Close closes the channel and connection.
func (s *AMQPSink) Close() error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
