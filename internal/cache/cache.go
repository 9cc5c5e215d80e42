// Package cache keeps a short-lived copy of each user's stored line items.
package cache

import (
	"context"
	"errors"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
)

// LineItemCache stores raw line items, never priced carts: prices and stock
// are always read live from the catalog.
type LineItemCache interface {
	Get(ctx context.Context, userID string) ([]domain.LineItem, error)
	Set(ctx context.Context, userID string, items []domain.LineItem) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop never stores anything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]domain.LineItem, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, string, []domain.LineItem) error  { return nil }
func (Noop) Delete(context.Context, string) error                   { return nil }
