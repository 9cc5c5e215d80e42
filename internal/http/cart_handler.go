package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/domain"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/identity"
	"github.com/GeorgeMcIntyre-Web/urbane-jungle/internal/service"
)

// CartService is the subset of the cart service the HTTP layer drives.
type CartService interface {
	List(ctx context.Context, userID string) (*domain.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) error
	Update(ctx context.Context, userID, itemID string, qty int) error
	Remove(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
	Checkout(ctx context.Context, userID string) (*domain.CheckoutRequested, error)
}

type CartHandler struct {
	svc    CartService
	logger *slog.Logger
}

func NewCartHandler(svc CartService, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{svc: svc, logger: logger}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity,omitempty"`
}

type UpdateItemRequestDTO struct {
	ItemID   string `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	ItemID string `json:"itemId"`
}

type ImageDTO struct {
	URL       string `json:"url"`
	AltText   string `json:"altText,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

type ProductDTO struct {
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	BasePrice string     `json:"basePrice"`
	SalePrice *string    `json:"salePrice"`
	IsOnSale  bool       `json:"isOnSale"`
	Active    bool       `json:"active"`
	Images    []ImageDTO `json:"images"`
}

type CartItemDTO struct {
	LineItemID     string     `json:"lineItemId"`
	ProductID      string     `json:"productId"`
	Quantity       int32      `json:"quantity"`
	UnitPrice      string     `json:"unitPrice"`
	AvailableStock *int32     `json:"availableStock"`
	Subtotal       string     `json:"subtotal"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Product        ProductDTO `json:"product"`
}

type CartResponseDTO struct {
	Items       []CartItemDTO `json:"items"`
	ItemCount   int64         `json:"itemCount"`
	TotalAmount string        `json:"totalAmount"`
}

type CheckoutItemDTO struct {
	LineItemID string `json:"lineItemId"`
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Quantity   int32  `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	Subtotal   string `json:"subtotal"`
}

type CheckoutResponseDTO struct {
	CheckoutID  string            `json:"checkoutId"`
	Items       []CheckoutItemDTO `json:"items"`
	TotalAmount string            `json:"totalAmount"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.List(r.Context(), identity.UserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserID(r.Context())
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "please sign in to add items to your cart")
		return
	}

	var req AddItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "productId is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
		if qty <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
			return
		}
	}

	if err := h.svc.Add(r.Context(), userID, req.ProductID, qty); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, MessageResponse{Message: "Item added to cart"})
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserID(r.Context())
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "please sign in to update your cart")
		return
	}

	var req UpdateItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ItemID == "" || req.Quantity == nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "itemId and quantity are required")
		return
	}

	if err := h.svc.Update(r.Context(), userID, req.ItemID, *req.Quantity); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, MessageResponse{Message: "Cart updated"})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserID(r.Context())
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "unauthorized", "please sign in to update your cart")
		return
	}

	var req RemoveItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "itemId is required")
		return
	}

	if err := h.svc.Remove(r.Context(), userID, req.ItemID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, MessageResponse{Message: "Item removed from cart"})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context(), identity.UserID(r.Context())); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, MessageResponse{Message: "Cart cleared"})
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	evt, err := h.svc.Checkout(r.Context(), identity.UserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := CheckoutResponseDTO{
		CheckoutID:  evt.CheckoutID,
		Items:       make([]CheckoutItemDTO, 0, len(evt.Lines)),
		TotalAmount: evt.TotalAmount.StringFixed(2),
	}
	for _, l := range evt.Lines {
		resp.Items = append(resp.Items, CheckoutItemDTO{
			LineItemID: l.LineItemID,
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.StringFixed(2),
			Subtotal:   l.Subtotal.StringFixed(2),
		})
	}
	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (h *CartHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "unhandled service error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	h.respondError(w, status, code, msg)
}

func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "please sign in"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock", err.Error()
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusConflict, "empty_cart", "cart is empty"
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable", "please try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func toCartResponse(cart *domain.Cart) CartResponseDTO {
	resp := CartResponseDTO{
		Items:       make([]CartItemDTO, 0, len(cart.Lines)),
		ItemCount:   cart.ItemCount,
		TotalAmount: cart.Total.StringFixed(2),
	}
	for _, l := range cart.Lines {
		p := l.Product
		item := CartItemDTO{
			LineItemID:     l.Item.ID,
			ProductID:      l.Item.ProductID,
			Quantity:       l.Item.Quantity,
			UnitPrice:      p.UnitPrice().StringFixed(2),
			AvailableStock: p.Stock,
			Subtotal:       l.Subtotal().StringFixed(2),
			CreatedAt:      l.Item.CreatedAt,
			UpdatedAt:      l.Item.UpdatedAt,
			Product: ProductDTO{
				Name:      p.Name,
				Slug:      p.Slug,
				BasePrice: p.BasePrice.StringFixed(2),
				IsOnSale:  p.OnSale,
				Active:    p.Active,
				Images:    make([]ImageDTO, 0, len(p.Images)),
			},
		}
		if p.SalePrice.Valid {
			s := p.SalePrice.Decimal.StringFixed(2)
			item.Product.SalePrice = &s
		}
		for _, img := range p.Images {
			item.Product.Images = append(item.Product.Images, ImageDTO{
				URL:       img.URL,
				AltText:   img.AltText,
				IsPrimary: img.Primary,
			})
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
