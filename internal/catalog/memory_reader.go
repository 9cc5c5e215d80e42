package catalog

import (
	"context"
	"sync"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
)

// MemoryReader is a map-backed catalog.
type MemoryReader struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewMemoryReader(products ...domain.Product) *MemoryReader {
	r := &MemoryReader{products: make(map[string]domain.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Put inserts or replaces a product.
func (r *MemoryReader) Put(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

func (r *MemoryReader) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
}

func (r *MemoryReader) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok || !p.Active {
		return domain.Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *MemoryReader) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}
