package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one (user, product) row of a cart. A stored line item always has
// Quantity > 0; setting it to zero deletes the row instead.
type LineItem struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	ProductID string    `json:"product_id" bson:"product_id"`
	Quantity  int32     `json:"quantity" bson:"quantity"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	// Seq orders rows created within the same timestamp.
	Seq int64 `json:"seq" bson:"seq"`
}

// CartLine is a line item joined with the catalog state read for it.
type CartLine struct {
	Item    LineItem
	Product Product
}

// Subtotal is zero for products that are no longer sold.
func (l CartLine) Subtotal() decimal.Decimal {
	if !l.Product.Active {
		return decimal.Zero
	}
	return l.Product.UnitPrice().Mul(decimal.NewFromInt32(l.Item.Quantity))
}

type Cart struct {
	UserID    string
	Lines     []CartLine
	ItemCount int64
	Total     decimal.Decimal
}

// NewCart builds the derived cart view. Lines keep the order they are given in.
func NewCart(userID string, lines []CartLine) *Cart {
	c := &Cart{
		UserID: userID,
		Lines:  lines,
		Total:  decimal.Zero,
	}
	if c.Lines == nil {
		c.Lines = []CartLine{}
	}
	for _, l := range c.Lines {
		if !l.Product.Active {
			continue
		}
		c.ItemCount += int64(l.Item.Quantity)
		c.Total = c.Total.Add(l.Subtotal())
	}
	return c
}
