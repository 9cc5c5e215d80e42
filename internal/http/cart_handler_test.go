package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/catalog"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/identity"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/repository"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceMock struct {
	cart      *domain.Cart
	checkout  *domain.CheckoutRequested
	err       error
	lastUser  string
	lastID    string
	lastQty   int
	lastCalls []string
}

func (s *serviceMock) record(name, userID string) {
	s.lastCalls = append(s.lastCalls, name)
	s.lastUser = userID
}

func (s *serviceMock) List(_ context.Context, userID string) (*domain.Cart, error) {
	s.record("List", userID)
	if s.err != nil {
		return nil, s.err
	}
	if s.cart == nil {
		return domain.NewCart(userID, nil), nil
	}
	return s.cart, nil
}

func (s *serviceMock) Add(_ context.Context, userID, productID string, qty int) error {
	s.record("Add", userID)
	s.lastID, s.lastQty = productID, qty
	return s.err
}

func (s *serviceMock) Update(_ context.Context, userID, itemID string, qty int) error {
	s.record("Update", userID)
	s.lastID, s.lastQty = itemID, qty
	return s.err
}

func (s *serviceMock) Remove(_ context.Context, userID, itemID string) error {
	s.record("Remove", userID)
	s.lastID = itemID
	return s.err
}

func (s *serviceMock) Clear(_ context.Context, userID string) error {
	s.record("Clear", userID)
	return s.err
}

func (s *serviceMock) Checkout(_ context.Context, userID string) (*domain.CheckoutRequested, error) {
	s.record("Checkout", userID)
	if s.err != nil {
		return nil, s.err
	}
	return s.checkout, nil
}

func newTestRouter(svc CartService) http.Handler {
	return NewRouter(RouterConfig{
		Service:  svc,
		Resolver: identity.HeaderResolver{},
	})
}

func doRequest(t *testing.T, h http.Handler, method, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/api/cart", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, "/api/cart", nil)
	}
	if userID != "" {
		req.Header.Set(identity.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestGetCart_Anonymous(t *testing.T) {
	svc := &serviceMock{}
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[CartResponseDTO](t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, "0.00", resp.TotalAmount)
	assert.Equal(t, "", svc.lastUser)
}

func TestGetCart_Success(t *testing.T) {
	stock := int32(4)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	monstera := domain.Product{
		ID:        "prod-001",
		Name:      "Monstera Deliciosa",
		Slug:      "monstera-deliciosa",
		BasePrice: decimal.RequireFromString("349.99"),
		SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("299.99")),
		OnSale:    true,
		Stock:     &stock,
		Active:    true,
		Images:    []domain.Image{{URL: "https://img/1.jpg", Primary: true}},
	}
	svc := &serviceMock{cart: domain.NewCart("u1", []domain.CartLine{{
		Item:    domain.LineItem{ID: "li-1", UserID: "u1", ProductID: "prod-001", Quantity: 2, CreatedAt: now, UpdatedAt: now},
		Product: monstera,
	}})}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	resp := decodeBody[CartResponseDTO](t, rec)
	require.Len(t, resp.Items, 1)
	item := resp.Items[0]
	assert.Equal(t, "li-1", item.LineItemID)
	assert.Equal(t, "299.99", item.UnitPrice)
	assert.Equal(t, "599.98", item.Subtotal)
	require.NotNil(t, item.AvailableStock)
	assert.Equal(t, int32(4), *item.AvailableStock)
	assert.Equal(t, "349.99", item.Product.BasePrice)
	require.NotNil(t, item.Product.SalePrice)
	assert.Equal(t, "299.99", *item.Product.SalePrice)
	assert.Len(t, item.Product.Images, 1)
	assert.Equal(t, int64(2), resp.ItemCount)
	assert.Equal(t, "599.98", resp.TotalAmount)
	assert.Equal(t, "u1", svc.lastUser)
}

func TestGetCart_UnboundedStockIsNull(t *testing.T) {
	svc := &serviceMock{cart: domain.NewCart("u1", []domain.CartLine{{
		Item:    domain.LineItem{ID: "li-1", ProductID: "p", Quantity: 1},
		Product: domain.Product{ID: "p", BasePrice: decimal.NewFromInt(3), Active: true},
	}})}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"availableStock":null`)
	assert.Contains(t, rec.Body.String(), `"salePrice":null`)
}

func TestAddItem(t *testing.T) {
	t.Run("default quantity", func(t *testing.T) {
		svc := &serviceMock{}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "u1", `{"productId":"prod-001"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Item added to cart", decodeBody[MessageResponse](t, rec).Message)
		assert.Equal(t, "prod-001", svc.lastID)
		assert.Equal(t, 1, svc.lastQty)
	})

	t.Run("explicit quantity", func(t *testing.T) {
		svc := &serviceMock{}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "u1", `{"productId":"prod-001","quantity":3}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, svc.lastQty)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := &serviceMock{}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "", `{"productId":"prod-001"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decodeBody[ErrorResponse](t, rec).Code)
		assert.Empty(t, svc.lastCalls)
	})

	t.Run("bad json", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(&serviceMock{}), http.MethodPost, "u1", `{"productId":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing product id", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(&serviceMock{}), http.MethodPost, "u1", `{"quantity":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non positive quantity", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(&serviceMock{}), http.MethodPost, "u1", `{"productId":"p","quantity":0}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_quantity", decodeBody[ErrorResponse](t, rec).Code)
	})
}

func TestUpdateItem(t *testing.T) {
	svc := &serviceMock{}
	rec := doRequest(t, newTestRouter(svc), http.MethodPut, "u1", `{"itemId":"li-1","quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cart updated", decodeBody[MessageResponse](t, rec).Message)
	assert.Equal(t, "li-1", svc.lastID)
	assert.Equal(t, 0, svc.lastQty)

	rec = doRequest(t, newTestRouter(&serviceMock{}), http.MethodPut, "u1", `{"itemId":"li-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, newTestRouter(&serviceMock{}), http.MethodPut, "", `{"itemId":"li-1","quantity":2}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveItem(t *testing.T) {
	svc := &serviceMock{}
	rec := doRequest(t, newTestRouter(svc), http.MethodDelete, "u1", `{"itemId":"li-9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item removed from cart", decodeBody[MessageResponse](t, rec).Message)
	assert.Equal(t, "li-9", svc.lastID)

	rec = doRequest(t, newTestRouter(&serviceMock{}), http.MethodDelete, "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCart(t *testing.T) {
	svc := &serviceMock{}
	req := httptest.NewRequest(http.MethodPost, "/api/cart/clear", nil)
	req.Header.Set(identity.UserIDHeader, "u1")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cart cleared", decodeBody[MessageResponse](t, rec).Message)
	assert.Equal(t, []string{"Clear"}, svc.lastCalls)
}

func TestCheckout(t *testing.T) {
	svc := &serviceMock{checkout: &domain.CheckoutRequested{
		CheckoutID:  "co-1",
		UserID:      "u1",
		Lines:       []domain.CheckoutLine{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(5), Subtotal: decimal.NewFromInt(5)}},
		TotalAmount: decimal.NewFromInt(5),
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/cart/checkout", nil)
	req.Header.Set(identity.UserIDHeader, "u1")
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody[CheckoutResponseDTO](t, rec)
	assert.Equal(t, "co-1", resp.CheckoutID)
	assert.Equal(t, "5.00", resp.TotalAmount)
	assert.Len(t, resp.Items, 1)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: product x", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{service.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{service.ErrEmptyCart, http.StatusConflict, "empty_cart"},
		{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{fmt.Errorf("%w: db down", service.ErrStoreUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &serviceMock{err: tt.err}
			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "u1", `{"productId":"p"}`)
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestRequestBodyLimit(t *testing.T) {
	h := NewRouter(RouterConfig{
		Service:      &serviceMock{},
		Resolver:     identity.HeaderResolver{},
		MaxBodyBytes: 16,
	})
	body := `{"productId":"` + strings.Repeat("x", 64) + `"}`
	rec := doRequest(t, h, http.MethodPost, "u1", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart", bytes.NewBufferString(`productId=p`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(identity.UserIDHeader, "u1")
	rec := httptest.NewRecorder()
	newTestRouter(&serviceMock{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// End to end through the real service and in-memory stores.
func TestCartFlow(t *testing.T) {
	stock := int32(3)
	products := catalog.NewMemoryReader(domain.Product{
		ID: "P1", Name: "Fern", BasePrice: decimal.RequireFromString("12.50"), Stock: &stock, Active: true,
	})
	svc := service.NewCartService(repository.NewMemoryRepository(), products)
	h := newTestRouter(svc)

	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodPost, "U1", `{"productId":"P1","quantity":2}`).Code)

	rec := doRequest(t, h, http.MethodPost, "U1", `{"productId":"P1","quantity":2}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "U1", `{"productId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	cart := decodeBody[CartResponseDTO](t, doRequest(t, h, http.MethodGet, "U1", ""))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int32(2), cart.Items[0].Quantity)
	assert.Equal(t, "25.00", cart.TotalAmount)
	id := cart.Items[0].LineItemID

	rec = doRequest(t, h, http.MethodPut, "U2", `{"itemId":"`+id+`","quantity":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "U1", `{"itemId":"`+id+`","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "U1", `{"itemId":"`+id+`","quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "U1", `{"itemId":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cart = decodeBody[CartResponseDTO](t, doRequest(t, h, http.MethodGet, "U1", ""))
	assert.Empty(t, cart.Items)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/checkout", nil)
	req.Header.Set(identity.UserIDHeader, "U1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
