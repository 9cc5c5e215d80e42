package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	Name             string
	MaxHalfOpen      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	ConsecutiveFails uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "catalog",
		MaxHalfOpen:      1,
		Interval:         time.Minute,
		OpenTimeout:      10 * time.Second,
		ConsecutiveFails: 5,
	}
}

// BreakerReader guards another Reader with a circuit breaker. Lookups of
// missing products count as successes.
type BreakerReader struct {
	next Reader
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerReader(next Reader, s BreakerSettings, logger *slog.Logger) *BreakerReader {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxHalfOpen,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &BreakerReader{next: next, cb: cb}
}

func (b *BreakerReader) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.GetProduct(ctx, id)
	})
	if err != nil {
		return domain.Product{}, b.translate(err)
	}
	return v.(domain.Product), nil
}

func (b *BreakerReader) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.GetProducts(ctx, ids)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return v.(map[string]domain.Product), nil
}

// State reports the breaker state for readiness checks.
func (b *BreakerReader) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerReader) translate(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: breaker %s", ErrUnavailable, b.cb.Name())
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
