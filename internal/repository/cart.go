package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT updated_at FROM carts WHERE user_id = $1`

	lockCartSQL = `SELECT updated_at FROM carts WHERE user_id = $1 FOR UPDATE`

	getCartItemsSQL = `SELECT id, product_id, quantity, price, variants, added_at
		FROM cart_items WHERE user_id = $1 ORDER BY position`

	upsertCartSQL = `INSERT INTO carts (user_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE user_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, user_id, product_id, quantity, price, variants, position, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	touchCartSQL = `UPDATE carts SET updated_at = NOW() WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Save
// replaces all lines of a cart, so concurrent edits of one cart are
// last-write-wins.
type CartRepository struct {
	q querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool}
}

// Get returns the user's cart, empty when none was saved yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.get(ctx, getCartSQL, userID)
}

// GetForUpdate is Get with the cart row locked until the surrounding
// transaction ends. Lines are read after the lock is granted, so a waiter
// sees the lines left by the checkout it queued behind.
func (r *CartRepository) GetForUpdate(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.get(ctx, lockCartSQL, userID)
}

func (r *CartRepository) get(ctx context.Context, headSQL, userID string) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID, Items: []cart.Item{}}
	err := r.q.QueryRow(ctx, headSQL, userID).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}

	rows, err := r.q.Query(ctx, getCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart items of %q: %w", userID, err)
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("getting cart items of %q: %w", userID, err)
	}
	c.Items = items
	return c, nil
}

// Save stores the cart and all its lines atomically.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCartSQL, c.UserID, updatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteCartItemsSQL, c.UserID); err != nil {
			return err
		}
		if len(c.Items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, it := range c.Items {
			variants := it.Variants
			if variants == nil {
				variants = map[string]string{}
			}
			batch.Queue(insertCartItemSQL,
				it.ID, c.UserID, it.ProductID, it.Quantity, it.Price, variants, i, it.AddedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("saving cart of %q: %w", c.UserID, err)
	}
	return nil
}

// Clear removes all lines and keeps the cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, deleteCartItemsSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	if _, err := r.q.Exec(ctx, touchCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Price, &it.Variants, &it.AddedAt)
	if len(it.Variants) == 0 {
		it.Variants = nil
	}
	return it, err
}
