// Package poller empties carts once their checkout has been paid for.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	CheckoutCompletedTopic = "checkout-completed"
	ConsumerGroup          = "cart-service-consumer"
)

// CartClearer is satisfied by the cart service.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	carts   CartClearer
	reader  messageReader
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

func NewPoller(carts CartClearer, logger *slog.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    CheckoutCompletedTopic,
		GroupID:  ConsumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, reader, logger)
}

func newPoller(carts CartClearer, reader messageReader, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		carts:   carts,
		reader:  reader,
		logger:  logger.With(slog.String("topic", CheckoutCompletedTopic)),
		retries: 3,
		backoff: 500 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.processNext(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("checkout completed processing failed", slog.Any("error", err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", slog.Any("error", err))
	}
}

// processNext handles one message. Malformed messages are committed and
// skipped; a clear that keeps failing is committed as well so one bad user
// cannot block the partition.
func (p *Poller) processNext(ctx context.Context) error {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		time.Sleep(p.backoff)
		return fmt.Errorf("fetch message: %w", err)
	}

	var evt domain.CheckoutCompleted
	if err := json.Unmarshal(m.Value, &evt); err != nil || evt.UserID == "" {
		p.logger.Warn("skipping malformed checkout event",
			slog.Int64("offset", m.Offset),
			slog.Int("partition", m.Partition),
			slog.Any("error", err),
		)
		return p.commit(ctx, m)
	}

	if err := p.clearWithRetry(ctx, evt.UserID); err != nil {
		p.logger.Error("giving up clearing cart",
			slog.String("user_id", evt.UserID),
			slog.String("checkout_id", evt.CheckoutID),
			slog.Any("error", err),
		)
	} else {
		p.logger.Info("cart cleared after checkout",
			slog.String("user_id", evt.UserID),
			slog.String("checkout_id", evt.CheckoutID),
		)
	}
	return p.commit(ctx, m)
}

func (p *Poller) clearWithRetry(ctx context.Context, userID string) error {
	var err error
	for attempt := 0; attempt < p.retries; attempt++ {
		if err = p.carts.Clear(ctx, userID); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(attempt+1)):
		}
	}
	return err
}

func (p *Poller) commit(ctx context.Context, m kafka.Message) error {
	if err := p.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}
