package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/google/uuid"
)

type pairKey struct {
	userID    string
	productID string
}

// MemoryRepository implements CartRepository with in-memory storage.
// A single mutex makes every operation atomic.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]*domain.LineItem // itemID -> line item
	byPair map[pairKey]string          // (user, product) -> itemID
	seq    int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:  make(map[string]*domain.LineItem),
		byPair: make(map[pairKey]string),
		now:    time.Now,
	}
}

func (m *MemoryRepository) List(_ context.Context, userID string) ([]domain.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.LineItem, 0)
	for _, item := range m.items {
		if item.UserID == userID {
			result = append(result, *item)
		}
	}
	sortLineItems(result)
	return result, nil
}

func (m *MemoryRepository) Get(_ context.Context, userID, itemID string) (*domain.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryRepository) AddItem(_ context.Context, userID, productID string, qty int32, limit int64) (*domain.LineItem, error) {
	if err := validateAdd(userID, productID, qty); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	key := pairKey{userID, productID}
	if id, ok := m.byPair[key]; ok {
		item := m.items[id]
		next := int64(item.Quantity) + int64(qty)
		if next > ceiling(limit) {
			return nil, ErrStockExceeded
		}
		item.Quantity = int32(next)
		item.UpdatedAt = now
		cp := *item
		return &cp, nil
	}

	if int64(qty) > ceiling(limit) {
		return nil, ErrStockExceeded
	}
	m.seq++
	item := &domain.LineItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: now,
		UpdatedAt: now,
		Seq:       m.seq,
	}
	m.items[item.ID] = item
	m.byPair[key] = item.ID
	cp := *item
	return &cp, nil
}

func (m *MemoryRepository) SetQuantity(_ context.Context, userID, itemID string, qty int32) error {
	if qty <= 0 {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return ErrItemNotFound
	}
	item.Quantity = qty
	item.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryRepository) RemoveItem(_ context.Context, userID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(m.items, itemID)
	delete(m.byPair, pairKey{item.UserID, item.ProductID})
	return true, nil
}

func (m *MemoryRepository) Clear(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, item := range m.items {
		if item.UserID == userID {
			delete(m.items, id)
			delete(m.byPair, pairKey{item.UserID, item.ProductID})
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func sortLineItems(items []domain.LineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Seq > items[j].Seq
	})
}
