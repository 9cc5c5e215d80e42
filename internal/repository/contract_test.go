package repository

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runRepositoryContract exercises behaviour every CartRepository must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) CartRepository) {
	t.Run("AddItem_NewItem", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		item, err := repo.AddItem(ctx, "user123", "p1", 3, domain.Unlimited)
		require.NoError(t, err)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, "user123", item.UserID)
		assert.Equal(t, "p1", item.ProductID)
		assert.Equal(t, int32(3), item.Quantity)
		assert.False(t, item.CreatedAt.IsZero())
	})

	t.Run("AddItem_ExistingItem_Merges", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.AddItem(ctx, "user123", "p1", 2, domain.Unlimited)
		require.NoError(t, err)
		second, err := repo.AddItem(ctx, "user123", "p1", 5, domain.Unlimited)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int32(7), second.Quantity)

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int32(7), items[0].Quantity)
	})

	t.Run("AddItem_StockLimit_LeavesQuantityUnchanged", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.AddItem(ctx, "user123", "p1", 2, 3)
		require.NoError(t, err)

		_, err = repo.AddItem(ctx, "user123", "p1", 2, 3)
		assert.ErrorIs(t, err, ErrStockExceeded)

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int32(2), items[0].Quantity)

		// exactly reaching the limit is allowed
		item, err := repo.AddItem(ctx, "user123", "p1", 1, 3)
		require.NoError(t, err)
		assert.Equal(t, int32(3), item.Quantity)
	})

	t.Run("AddItem_UnlimitedStock_StopsAtMaxQuantity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.AddItem(ctx, "user123", "p1", math.MaxInt32, domain.Unlimited)
		require.NoError(t, err)

		_, err = repo.AddItem(ctx, "user123", "p1", 1, domain.Unlimited)
		assert.ErrorIs(t, err, ErrStockExceeded)

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int32(math.MaxInt32), items[0].Quantity)

		// a limit above the int32 range is clamped the same way
		_, err = repo.AddItem(ctx, "user123", "p1", 1, math.MaxInt64)
		assert.ErrorIs(t, err, ErrStockExceeded)
	})

	t.Run("AddItem_NewItemOverLimit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.AddItem(ctx, "user123", "p1", 4, 3)
		assert.ErrorIs(t, err, ErrStockExceeded)

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("AddItem_InvalidInput", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.AddItem(context.Background(), "user123", "p1", 0, domain.Unlimited)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("List_OrderedNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, p := range []string{"p1", "p2", "p3"} {
			_, err := repo.AddItem(ctx, "user123", p, 1, domain.Unlimited)
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "p3", items[0].ProductID)
		assert.Equal(t, "p2", items[1].ProductID)
		assert.Equal(t, "p1", items[2].ProductID)
	})

	t.Run("Get_OtherUser_NotFound", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		item, err := repo.AddItem(ctx, "user1", "p1", 1, domain.Unlimited)
		require.NoError(t, err)

		_, err = repo.Get(ctx, "user2", item.ID)
		assert.ErrorIs(t, err, ErrItemNotFound)

		got, err := repo.Get(ctx, "user1", item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, got.ID)
	})

	t.Run("SetQuantity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		item, err := repo.AddItem(ctx, "user123", "p1", 2, domain.Unlimited)
		require.NoError(t, err)

		require.NoError(t, repo.SetQuantity(ctx, "user123", item.ID, 10))
		got, err := repo.Get(ctx, "user123", item.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(10), got.Quantity)

		assert.ErrorIs(t, repo.SetQuantity(ctx, "someone-else", item.ID, 1), ErrItemNotFound)
		assert.ErrorIs(t, repo.SetQuantity(ctx, "user123", "missing", 1), ErrItemNotFound)
		assert.ErrorIs(t, repo.SetQuantity(ctx, "user123", item.ID, 0), ErrInvalidInput)
	})

	t.Run("RemoveItem_Idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		item, err := repo.AddItem(ctx, "user123", "p1", 2, domain.Unlimited)
		require.NoError(t, err)

		removed, err := repo.RemoveItem(ctx, "user123", item.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.RemoveItem(ctx, "user123", item.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		// the pair can be added again after removal
		again, err := repo.AddItem(ctx, "user123", "p1", 1, domain.Unlimited)
		require.NoError(t, err)
		assert.Equal(t, int32(1), again.Quantity)
	})

	t.Run("RemoveItem_OtherUserUntouched", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u1, err := repo.AddItem(ctx, "u1", "p1", 1, domain.Unlimited)
		require.NoError(t, err)
		u2, err := repo.AddItem(ctx, "u2", "p1", 1, domain.Unlimited)
		require.NoError(t, err)
		assert.NotEqual(t, u1.ID, u2.ID)

		removed, err := repo.RemoveItem(ctx, "u2", u1.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = repo.RemoveItem(ctx, "u2", u2.ID)
		require.NoError(t, err)

		items, err := repo.List(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, u1.ID, items[0].ID)
	})

	t.Run("Clear", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, p := range []string{"p1", "p2"} {
			_, err := repo.AddItem(ctx, "user123", p, 1, domain.Unlimited)
			require.NoError(t, err)
		}
		_, err := repo.AddItem(ctx, "other", "p1", 1, domain.Unlimited)
		require.NoError(t, err)

		n, err := repo.Clear(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		assert.Empty(t, items)

		n, err = repo.Clear(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		others, err := repo.List(ctx, "other")
		require.NoError(t, err)
		assert.Len(t, others, 1)
	})

	t.Run("ConcurrentAddItem_NoLostUpdates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const N = 50
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < N; i++ {
			g.Go(func() error {
				_, err := repo.AddItem(gctx, "user123", "p1", 1, domain.Unlimited)
				return err
			})
		}
		require.NoError(t, g.Wait())

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int32(N), items[0].Quantity)
	})

	t.Run("ConcurrentAddItem_RespectsLimit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const N = 30
		const limit = 10
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < N; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AddItem(ctx, "user123", "p1", 1, limit)
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrStockExceeded)
			}()
		}
		wg.Wait()

		items, err := repo.List(ctx, "user123")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int32(limit), items[0].Quantity)
		assert.Equal(t, limit, accepted)
	})
}
