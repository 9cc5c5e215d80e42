// Package publisher emits cart events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	CheckoutRequestedTopic = "checkout-requested"
	eventTypeHeader        = "event_type"
	checkoutRequestedType  = "checkout.requested"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CheckoutPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewCheckoutPublisher(brokers ...string) *CheckoutPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  CheckoutRequestedTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &CheckoutPublisher{writer: w, timeout: 5 * time.Second}
}

// PublishCheckoutRequested keys the message by user so one shopper's
// checkouts stay ordered on a single partition.
func (p *CheckoutPublisher) PublishCheckoutRequested(ctx context.Context, evt domain.CheckoutRequested) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(checkoutRequestedType)},
			{Key: "checkout_id", Value: []byte(evt.CheckoutID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write checkout event: %w", err)
	}
	return nil
}

func (p *CheckoutPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops events. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishCheckoutRequested(context.Context, domain.CheckoutRequested) error { return nil }
func (Noop) Close() error                                                          { return nil }
