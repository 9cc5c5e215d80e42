package repository

import (
	"context"
	"errors"
	"math"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
)

var (
	ErrItemNotFound  = errors.New("item not found in cart")
	ErrStockExceeded = errors.New("quantity exceeds stock limit")
	ErrInvalidInput  = errors.New("invalid line item input")
)

// CartRepository defines the interface for cart line item storage.
// Consumers define this interface, not the storage implementations.
type CartRepository interface {
	// List returns the user's line items, most recently created first.
	List(ctx context.Context, userID string) ([]domain.LineItem, error)

	// Get returns the line item only if it belongs to userID.
	Get(ctx context.Context, userID, itemID string) (*domain.LineItem, error)

	// AddItem creates the (userID, productID) line item or increments its
	// quantity by qty as one atomic step. If the resulting quantity would exceed
	// limit, or MaxQuantity when limit is domain.Unlimited, nothing changes and
	// ErrStockExceeded is returned.
	AddItem(ctx context.Context, userID, productID string, qty int32, limit int64) (*domain.LineItem, error)

	// SetQuantity overwrites the quantity of an owned line item. qty must be > 0.
	SetQuantity(ctx context.Context, userID, itemID string, qty int32) error

	// RemoveItem deletes an owned line item and reports whether it existed.
	RemoveItem(ctx context.Context, userID, itemID string) (bool, error)

	// Clear deletes every line item of userID in one operation.
	Clear(ctx context.Context, userID string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// MaxQuantity is the largest quantity a line item can hold.
const MaxQuantity int64 = math.MaxInt32

// ceiling returns the highest quantity a line item may reach under limit.
func ceiling(limit int64) int64 {
	if limit == domain.Unlimited || limit > MaxQuantity {
		return MaxQuantity
	}
	return limit
}

func validateAdd(userID, productID string, qty int32) error {
	if userID == "" || productID == "" || qty <= 0 {
		return ErrInvalidInput
	}
	return nil
}
