package domain

import "github.com/shopspring/decimal"

// Unlimited is passed to stores as the stock ceiling of products without a
// tracked stock level.
const Unlimited int64 = -1

type Image struct {
	URL       string
	AltText   string
	Primary   bool
	SortOrder int
}

// Product is a read-only catalog snapshot taken when a cart operation runs.
type Product struct {
	ID        string
	Name      string
	Slug      string
	BasePrice decimal.Decimal
	SalePrice decimal.NullDecimal
	OnSale    bool
	// Stock is nil when the catalog does not track availability.
	Stock  *int32
	Active bool
	Images []Image
}

// UnitPrice returns the price a shopper pays right now.
func (p Product) UnitPrice() decimal.Decimal {
	if p.OnSale && p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.BasePrice
}

// StockLimit returns the stock ceiling for quantity checks, or Unlimited.
func (p Product) StockLimit() int64 {
	if p.Stock == nil {
		return Unlimited
	}
	return int64(*p.Stock)
}

// Allows reports whether qty units fit into the available stock.
func (p Product) Allows(qty int64) bool {
	limit := p.StockLimit()
	return limit == Unlimited || qty <= limit
}

func (p Product) PrimaryImage() (Image, bool) {
	for _, img := range p.Images {
		if img.Primary {
			return img, true
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0], true
	}
	return Image{}, false
}
