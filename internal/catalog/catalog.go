// Package catalog provides read-only product lookups for cart operations.
package catalog

import (
	"context"
	"errors"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrUnavailable means the catalog could not be consulted at all.
	ErrUnavailable = errors.New("catalog unavailable")
)

// Reader looks up a product's current price and stock. Inactive products are
// reported as ErrProductNotFound.
type Reader interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	// GetProducts returns the products that exist, keyed by id, including
	// inactive ones. Missing ids are simply absent from the map.
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}
