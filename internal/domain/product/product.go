package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrNotFound is returned when a requested product does not exist or is not
// visible to the caller.
var ErrNotFound = apperr.NotFound("Product not found")

// Status is the catalog lifecycle state of a product.
type Status string

const (
	StatusDraft        Status = "draft"
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusDiscontinued Status = "discontinued"
	// StatusDeleted marks soft-deleted rows. It is never accepted as input.
	StatusDeleted Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive, StatusDiscontinued:
		return true
	}
	return false
}

// Visibility controls who can see a product.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityHidden  Visibility = "hidden"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityHidden:
		return true
	}
	return false
}

// DiscountType selects how Discount.Value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// StockStatus is derived from available stock and the low-stock threshold.
type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	LowStock   StockStatus = "low_stock"
	OutOfStock StockStatus = "out_of_stock"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	SKU         string
	Slug        string
	Title       string
	Description string
	Brand       string
	CategoryID  string
	Price       Price
	Discount    Discount
	Stock       Stock
	Status      Status
	Visibility  Visibility
	Featured    bool
	Trending    bool
	Analytics   Analytics
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Price holds the list and effective selling price.
type Price struct {
	Original decimal.Decimal
	Selling  decimal.Decimal
	Currency string
}

// Discount describes a price reduction applied to the original price.
type Discount struct {
	Type      DiscountType
	Value     decimal.Decimal
	Active    bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Stock holds inventory counters for a single product.
type Stock struct {
	Quantity          int
	Reserved          int
	LowStockThreshold int
	TrackInventory    bool
}

// Analytics holds counters maintained by order and wishlist flows.
type Analytics struct {
	Views         int
	Purchases     int
	WishlistCount int
}

// AvailableStock is the quantity that can still be sold.
func (p *Product) AvailableStock() int {
	return p.Stock.Quantity - p.Stock.Reserved
}

// StockStatus classifies AvailableStock against the low-stock threshold.
func (p *Product) StockStatus() StockStatus {
	available := p.AvailableStock()
	switch {
	case available <= 0:
		return OutOfStock
	case available <= p.Stock.LowStockThreshold:
		return LowStock
	default:
		return InStock
	}
}

// Purchasable reports whether the product may be added to a cart or order.
func (p *Product) Purchasable() bool {
	return p.Status == StatusActive && p.Visibility == VisibilityPublic
}

// ApplyDiscount recomputes the selling price from the original price when an
// active discount is set. The result is clamped at zero.
func (p *Product) ApplyDiscount() {
	d := p.Discount
	if !d.Active || !d.Value.IsPositive() {
		return
	}
	var selling decimal.Decimal
	switch d.Type {
	case DiscountFixed:
		selling = p.Price.Original.Sub(d.Value)
	default:
		selling = p.Price.Original.Sub(p.Price.Original.Mul(d.Value).Div(decimal.NewFromInt(100)))
	}
	if selling.IsNegative() {
		selling = decimal.Zero
	}
	p.Price.Selling = selling.Round(2)
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// Update overwrites the editable fields of p. Stock counters and
	// analytics are left as stored.
	Update(ctx context.Context, p *Product) error
	// SoftDelete marks a live product deleted. It returns ErrNotFound when
	// there is no such product or it is already deleted.
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// LowStock returns tracked, non-deleted products whose available stock is
	// at or below their threshold, lowest first.
	LowStock(ctx context.Context, limit int) ([]Product, error)
	Search(ctx context.Context, f Filter) (*Page, error)
}
