package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/cache"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/catalog"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const cacheTimeout = time.Second

// EventPublisher announces checkouts to the payment side.
type EventPublisher interface {
	PublishCheckoutRequested(ctx context.Context, evt domain.CheckoutRequested) error
}

type CartService struct {
	repo      repository.CartRepository
	catalog   catalog.Reader
	cache     cache.LineItemCache
	publisher EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	sfg       singleflight.Group // collapses concurrent cache misses per user
	fills     fillGuard
}

const fillStripes = 256

// fillGuard keeps a store read from repopulating the cache after a mutation
// for the same user has invalidated it. Users hash onto stripes; a bump on a
// shared stripe only costs a skipped fill.
type fillGuard struct {
	stripes [fillStripes]struct {
		mu  sync.Mutex
		gen uint64
	}
}

func (g *fillGuard) stripe(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % fillStripes)
}

func (g *fillGuard) generation(userID string) uint64 {
	st := &g.stripes[g.stripe(userID)]
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// fillIf runs fill only if no invalidation happened since gen was read.
// The stripe stays locked during fill so a concurrent bump waits for it.
func (g *fillGuard) fillIf(userID string, gen uint64, fill func()) bool {
	st := &g.stripes[g.stripe(userID)]
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return false
	}
	fill()
	return true
}

func (g *fillGuard) bump(userID string) {
	st := &g.stripes[g.stripe(userID)]
	st.mu.Lock()
	st.gen++
	st.mu.Unlock()
}

type Option func(*CartService)

func WithCache(c cache.LineItemCache) Option {
	return func(s *CartService) { s.cache = c }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *CartService) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *CartService) { s.logger = l }
}

func NewCartService(repo repository.CartRepository, reader catalog.Reader, opts ...Option) *CartService {
	s := &CartService{
		repo:    repo,
		catalog: reader,
		cache:   cache.Noop{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("cart-service"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the user's cart priced with live catalog data. An empty user
// id gets an empty cart rather than an error.
func (s *CartService) List(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return domain.NewCart("", nil), nil
	}

	ctx, span := s.tracer.Start(ctx, "CartService.List")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		items, err := s.lineItems(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.price(ctx, userID, items)
	})
	if err != nil {
		return nil, s.fail(ctx, "list cart", err, slog.String("user_id", userID))
	}
	return v.(*domain.Cart), nil
}

// Add puts qty units of a product in the cart, merging with an existing line.
// qty 0 means one unit.
func (s *CartService) Add(ctx context.Context, userID, productID string, qty int) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if qty == 0 {
		qty = 1
	}
	q, err := toQuantity(qty)
	if err != nil || q <= 0 {
		return ErrInvalidQuantity
	}
	if productID == "" {
		return fmt.Errorf("%w: product", ErrNotFound)
	}

	ctx, span := s.tracer.Start(ctx, "CartService.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.user_id", userID),
		attribute.String("app.product_id", productID),
		attribute.Int("app.quantity", qty),
	)
	attrs := []any{slog.String("user_id", userID), slog.String("product_id", productID), slog.Int("quantity", qty)}

	product, err := s.product(ctx, productID)
	if err != nil {
		return s.fail(ctx, "add item", err, attrs...)
	}
	if !product.Allows(int64(q)) {
		return fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, q, product.StockLimit())
	}

	if _, err := s.repo.AddItem(ctx, userID, productID, q, product.StockLimit()); err != nil {
		return s.fail(ctx, "add item", mapRepoErr(err), attrs...)
	}

	s.invalidate(ctx, userID)
	return nil
}

// Update sets a line item to an absolute quantity; qty <= 0 removes it.
func (s *CartService) Update(ctx context.Context, userID, itemID string, qty int) error {
	if userID == "" {
		return ErrUnauthorized
	}

	ctx, span := s.tracer.Start(ctx, "CartService.Update")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.user_id", userID),
		attribute.String("app.line_item_id", itemID),
		attribute.Int("app.quantity", qty),
	)
	attrs := []any{slog.String("user_id", userID), slog.String("line_item_id", itemID), slog.Int("quantity", qty)}

	item, err := s.repo.Get(ctx, userID, itemID)
	if err != nil {
		return s.fail(ctx, "update item", mapRepoErr(err), attrs...)
	}

	if qty <= 0 {
		if _, err := s.repo.RemoveItem(ctx, userID, item.ID); err != nil {
			return s.fail(ctx, "update item", mapRepoErr(err), attrs...)
		}
		s.invalidate(ctx, userID)
		return nil
	}

	q, err := toQuantity(qty)
	if err != nil {
		return err
	}

	product, err := s.product(ctx, item.ProductID)
	if err != nil {
		return s.fail(ctx, "update item", err, attrs...)
	}
	if !product.Allows(int64(q)) {
		return fmt.Errorf("%w: %d requested, %d available", ErrInsufficientStock, q, product.StockLimit())
	}

	if err := s.repo.SetQuantity(ctx, userID, item.ID, q); err != nil {
		return s.fail(ctx, "update item", mapRepoErr(err), attrs...)
	}

	s.invalidate(ctx, userID)
	return nil
}

// Remove deletes a line item. Removing an absent or foreign item succeeds.
func (s *CartService) Remove(ctx context.Context, userID, itemID string) error {
	if userID == "" {
		return ErrUnauthorized
	}

	ctx, span := s.tracer.Start(ctx, "CartService.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID), attribute.String("app.line_item_id", itemID))

	existed, err := s.repo.RemoveItem(ctx, userID, itemID)
	if err != nil {
		return s.fail(ctx, "remove item", mapRepoErr(err),
			slog.String("user_id", userID), slog.String("line_item_id", itemID))
	}
	if existed {
		s.invalidate(ctx, userID)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}

	ctx, span := s.tracer.Start(ctx, "CartService.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return s.fail(ctx, "clear cart", mapRepoErr(err), slog.String("user_id", userID))
	}

	s.invalidate(ctx, userID)
	s.logger.DebugContext(ctx, "cart cleared", slog.String("user_id", userID), slog.Int64("removed", n))
	return nil
}

// Checkout freezes the current prices of the cart and announces it. Lines
// whose product is no longer sold are left out. The cart itself is cleared
// only once the checkout completes.
func (s *CartService) Checkout(ctx context.Context, userID string) (*domain.CheckoutRequested, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	ctx, span := s.tracer.Start(ctx, "CartService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "checkout", mapRepoErr(err), slog.String("user_id", userID))
	}
	cart, err := s.price(ctx, userID, items)
	if err != nil {
		return nil, s.fail(ctx, "checkout", err, slog.String("user_id", userID))
	}

	evt := domain.CheckoutRequested{
		CheckoutID:  uuid.NewString(),
		UserID:      userID,
		Lines:       make([]domain.CheckoutLine, 0, len(cart.Lines)),
		TotalAmount: cart.Total,
		RequestedAt: s.now().UTC(),
	}
	for _, l := range cart.Lines {
		if !l.Product.Active {
			continue
		}
		if !l.Product.Allows(int64(l.Item.Quantity)) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, l.Product.Name)
		}
		evt.Lines = append(evt.Lines, domain.CheckoutLine{
			LineItemID: l.Item.ID,
			ProductID:  l.Item.ProductID,
			Name:       l.Product.Name,
			Quantity:   l.Item.Quantity,
			UnitPrice:  l.Product.UnitPrice(),
			Subtotal:   l.Subtotal(),
		})
	}
	if len(evt.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCheckoutRequested(ctx, evt); err != nil {
			return nil, s.fail(ctx, "checkout", fmt.Errorf("%w: %v", ErrStoreUnavailable, err),
				slog.String("user_id", userID), slog.String("checkout_id", evt.CheckoutID))
		}
	}

	s.logger.InfoContext(ctx, "checkout requested",
		slog.String("user_id", userID),
		slog.String("checkout_id", evt.CheckoutID),
		slog.Int("lines", len(evt.Lines)),
		slog.String("total", evt.TotalAmount.StringFixed(2)),
	)
	return &evt, nil
}

func (s *CartService) lineItems(ctx context.Context, userID string) ([]domain.LineItem, error) {
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	items, err := s.cache.Get(cctx, userID)
	cancel()
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "cache get failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	gen := s.fills.generation(userID)
	items, err = s.repo.List(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	filled := s.fills.fillIf(userID, gen, func() {
		cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
		defer cancel()
		if err := s.cache.Set(cctx, userID, items); err != nil {
			s.logger.WarnContext(ctx, "cache set failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	})
	if !filled {
		s.logger.DebugContext(ctx, "cart changed during read, cache not filled", slog.String("user_id", userID))
	}
	return items, nil
}

// price joins line items with the catalog. Products missing from the catalog
// show up inactive so the shopper can still remove them.
func (s *CartService) price(ctx context.Context, userID string, items []domain.LineItem) (*domain.Cart, error) {
	if len(items) == 0 {
		return domain.NewCart(userID, nil), nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			p = domain.Product{ID: it.ProductID}
		}
		lines = append(lines, domain.CartLine{Item: it, Product: p})
	}
	return domain.NewCart(userID, lines), nil
}

func (s *CartService) product(ctx context.Context, productID string) (domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, catalog.ErrProductNotFound):
		return domain.Product{}, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	default:
		return domain.Product{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// invalidate runs after a successful write. It detaches from ctx so a
// cancelled request still drops the cached line items.
func (s *CartService) invalidate(ctx context.Context, userID string) {
	s.fills.bump(userID)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Delete(dctx, userID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// fail records err on the span and logs it unless it is an expected outcome.
func (s *CartService) fail(ctx context.Context, op string, err error, attrs ...any) error {
	if isClientError(err) {
		return err
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	s.logger.ErrorContext(ctx, op+" failed", append(attrs, slog.Any("error", err))...)
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrEmptyCart)
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		return fmt.Errorf("%w: line item", ErrNotFound)
	case errors.Is(err, repository.ErrStockExceeded):
		return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	case errors.Is(err, repository.ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func toQuantity(qty int) (int32, error) {
	if qty > math.MaxInt32 || qty < math.MinInt32 {
		return 0, ErrInvalidQuantity
	}
	return int32(qty), nil
}
