package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const (
	// The quantity guard and the decrement are one statement, so concurrent
	// orders for the last unit cannot both succeed.
	adjustStockSQL = `UPDATE products
		SET quantity = quantity + $2,
			purchases = GREATEST(purchases + $3, 0),
			updated_at = NOW()
		WHERE id = $1 AND (NOT track_inventory OR quantity + $2 >= 0)`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	lockQuantitySQL = `SELECT quantity FROM products WHERE id = $1 FOR UPDATE`

	setQuantitySQL = `UPDATE products SET quantity = $2, updated_at = NOW() WHERE id = $1`

	recordAdjustmentSQL = `INSERT INTO stock_adjustments
		(product_id, op, quantity, previous, current, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	listAdjustmentsSQL = `SELECT product_id, op, quantity, previous, current, reason, actor, created_at
		FROM stock_adjustments
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

var (
	_ inventory.Store         = (*StockStore)(nil)
	_ inventory.AdjustmentLog = (*AdjustmentRepository)(nil)
)

// StockStore implements inventory.Store. It is always bound to a
// transaction by TxManager.
type StockStore struct {
	q querier
}

// Adjust implements inventory.Store.
func (s *StockStore) Adjust(ctx context.Context, productID string, qtyDelta, purchasesDelta int) error {
	tag, err := s.q.Exec(ctx, adjustStockSQL, productID, qtyDelta, purchasesDelta)
	if err != nil {
		if pgErrorCode(err) == codeCheckViolation {
			return inventory.ErrInsufficientStock
		}
		return fmt.Errorf("adjusting stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRow(ctx, productExistsSQL, productID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", productID, err)
	}
	if !exists {
		return inventory.ErrProductNotFound
	}
	return inventory.ErrInsufficientStock
}

// LockQuantity implements inventory.Store.
func (s *StockStore) LockQuantity(ctx context.Context, productID string) (int, error) {
	var qty int
	if err := s.q.QueryRow(ctx, lockQuantitySQL, productID).Scan(&qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, inventory.ErrProductNotFound
		}
		return 0, fmt.Errorf("locking product %q: %w", productID, err)
	}
	return qty, nil
}

// SetQuantity implements inventory.Store.
func (s *StockStore) SetQuantity(ctx context.Context, productID string, qty int) error {
	tag, err := s.q.Exec(ctx, setQuantitySQL, productID, qty)
	if err != nil {
		return fmt.Errorf("setting stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

// RecordAdjustment implements inventory.Store.
func (s *StockStore) RecordAdjustment(ctx context.Context, a inventory.Adjustment) error {
	_, err := s.q.Exec(ctx, recordAdjustmentSQL,
		a.ProductID, string(a.Op), a.Quantity, a.Previous, a.Current, a.Reason, a.Actor, a.At,
	)
	if err != nil {
		return fmt.Errorf("recording stock adjustment for %q: %w", a.ProductID, err)
	}
	return nil
}

// AdjustmentRepository reads the stock_adjustments audit trail.
type AdjustmentRepository struct {
	q querier
}

// NewAdjustmentRepository returns an AdjustmentRepository that uses the given pool.
func NewAdjustmentRepository(pool *pgxpool.Pool) *AdjustmentRepository {
	return &AdjustmentRepository{q: pool}
}

// ListAdjustments implements inventory.AdjustmentLog.
func (r *AdjustmentRepository) ListAdjustments(ctx context.Context, productID string, limit int) ([]inventory.Adjustment, error) {
	rows, err := r.q.Query(ctx, listAdjustmentsSQL, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stock adjustments of %q: %w", productID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Adjustment, error) {
		var (
			a  inventory.Adjustment
			op string
		)
		err := row.Scan(&a.ProductID, &op, &a.Quantity, &a.Previous, &a.Current, &a.Reason, &a.Actor, &a.At)
		a.Op = inventory.Op(op)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing stock adjustments of %q: %w", productID, err)
	}
	return out, nil
}
