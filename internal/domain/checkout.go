package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutLine freezes the price of one line at the moment checkout starts.
type CheckoutLine struct {
	LineItemID string          `json:"line_item_id"`
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int32           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// CheckoutRequested is emitted when a shopper starts paying for their cart.
type CheckoutRequested struct {
	CheckoutID  string          `json:"checkout_id"`
	UserID      string          `json:"user_id"`
	Lines       []CheckoutLine  `json:"lines"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	RequestedAt time.Time       `json:"requested_at"`
}

// CheckoutCompleted is consumed once payment for a checkout went through.
type CheckoutCompleted struct {
	CheckoutID  string    `json:"checkout_id"`
	UserID      string    `json:"user_id"`
	OrderID     string    `json:"order_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
