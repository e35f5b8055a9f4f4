// Package inventory keeps product stock consistent with order state changes.
//
// All mutations go through Store.Adjust, a single conditional update that
// refuses to drive a tracked quantity below zero. Callers run the reconciler
// inside the same transaction as the order mutation it mirrors and guard
// against double application by checking the order status under a row lock.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrInsufficientStock is returned by Store.Adjust when the guarded update
// matched no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrProductNotFound is returned when an adjustment targets a missing product.
var ErrProductNotFound = apperr.NotFound("Product not found")

// StockError reports a line that could not be reserved.
type StockError struct {
	ProductID string
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// ErrorKind implements apperr.Kinder.
func (e *StockError) ErrorKind() apperr.Kind { return apperr.KindStock }

// ErrorDetails implements the details hook read by the HTTP layer.
func (e *StockError) ErrorDetails() any {
	return map[string]any{"productId": e.ProductID, "requested": e.Requested}
}

// Line is a product quantity taken from an order.
type Line struct {
	ProductID string
	Quantity  int
}

// Op is an admin stock adjustment operation.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpSet      Op = "set"
)

// Adjustment is an audit record of an admin stock change.
type Adjustment struct {
	ProductID string
	Op        Op
	Quantity  int
	Previous  int
	Current   int
	Reason    string
	Actor     string
	At        time.Time
}

// Store is the storage primitive used by the reconciler. Implementations are
// bound to a transaction.
type Store interface {
	// Adjust adds qtyDelta to the stock quantity and purchasesDelta to the
	// purchase counter. A negative qtyDelta on a tracked product must fail
	// with ErrInsufficientStock when the quantity would go below zero. The
	// purchase counter never goes below zero.
	Adjust(ctx context.Context, productID string, qtyDelta, purchasesDelta int) error
	// LockQuantity returns the current quantity and holds a row lock until
	// the transaction ends.
	LockQuantity(ctx context.Context, productID string) (int, error)
	SetQuantity(ctx context.Context, productID string, qty int) error
	RecordAdjustment(ctx context.Context, a Adjustment) error
}

// AdjustmentLog reads the stock audit trail.
type AdjustmentLog interface {
	// ListAdjustments returns the newest adjustments of a product first.
	ListAdjustments(ctx context.Context, productID string, limit int) ([]Adjustment, error)
}

// Transactor runs fn with a Store bound to a single transaction.
type Transactor interface {
	WithinStockTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type tally struct {
	ProductID string
	Quantity  int
	Lines     int
}

// merge sums quantities per product, keeping first-seen order, so the guard
// sees the total requested for a product with several variant lines. Lines
// counts the order lines folded in, which is what the purchase counter tracks.
func merge(lines []Line) []tally {
	idx := make(map[string]int, len(lines))
	out := make([]tally, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			out[i].Lines++
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, tally{ProductID: l.ProductID, Quantity: l.Quantity, Lines: 1})
	}
	return out
}
