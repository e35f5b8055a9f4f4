package cart

import (
	"context"
	"fmt"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// Action tells the client how to resolve a violation.
type Action string

const (
	ActionRemove Action = "remove"
	ActionUpdate Action = "update"
)

// Violation describes a cart line that cannot be purchased as is.
type Violation struct {
	ItemID         string `json:"itemId"`
	ProductID      string `json:"productId"`
	Action         Action `json:"action"`
	Message        string `json:"message"`
	AvailableStock *int   `json:"availableStock,omitempty"`
}

// ViolationsError rejects an operation because of cart violations.
type ViolationsError struct {
	Message    string
	Violations []Violation
}

func (e *ViolationsError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Cart validation failed"
}

// ErrorKind implements apperr.Kinder.
func (e *ViolationsError) ErrorKind() apperr.Kind { return apperr.KindStateConflict }

// ErrorDetails exposes the full violation list to clients.
func (e *ViolationsError) ErrorDetails() any { return e.Violations }

// ProductLookup resolves products in bulk. Missing IDs are omitted from the
// result.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// Validate checks each line, in order, for: a resolvable product, an active
// public product, and enough available stock when inventory is tracked. It
// only reads and reports.
func Validate(ctx context.Context, lookup ProductLookup, items []Item) ([]Violation, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := lookup.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	var violations []Violation
	for _, it := range items {
		v := Violation{ItemID: it.ID, ProductID: it.ProductID}
		p, ok := productMap[it.ProductID]
		switch {
		case !ok:
			v.Action, v.Message = ActionRemove, "Product not found"
		case !p.Purchasable():
			v.Action, v.Message = ActionRemove, "Product is no longer available"
		case p.Stock.TrackInventory && p.AvailableStock() < it.Quantity:
			available := max(p.AvailableStock(), 0)
			v.Action = ActionUpdate
			v.Message = fmt.Sprintf("Only %d items available in stock", available)
			v.AvailableStock = &available
		default:
			continue
		}
		violations = append(violations, v)
	}
	return violations, nil
}
