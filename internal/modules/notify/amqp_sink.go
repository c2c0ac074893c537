// README: AMQP sink; publishes assignments to a fanout exchange for the email renderer.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "notifications_fanout"

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPSink struct {
	mu       sync.Mutex
	ch       amqpPublisher
	acks     <-chan amqp.Confirmation
	exchange string
	close    func() error
}

// NewAMQPSink opens a dedicated channel in confirm mode and declares the
// durable fanout exchange.
func NewAMQPSink(conn *amqp.Connection, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQPSink{ch: ch, acks: acks, exchange: exchange, close: ch.Close}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// Deliver publishes one persistent message and waits for the broker's confirm.
// Publishes are serialized so each confirm matches its message.
func (s *AMQPSink) Deliver(ctx context.Context, a Assignment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assignment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx, s.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         a.Type,
		MessageId:    a.OrderID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}

	select {
	case conf, ok := <-s.acks:
		if !ok {
			return errors.New("amqp channel closed before confirm")
		}
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AMQPSink) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
