package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/wishlist"
)

const (
	getWishlistSQL = `SELECT product_id, added_at FROM wishlist_items
		WHERE user_id = $1 ORDER BY added_at DESC, product_id`

	addWishlistItemSQL = `INSERT INTO wishlist_items (user_id, product_id, added_at)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	removeWishlistItemSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`

	bumpWishlistCountSQL = `UPDATE products
		SET wishlist_count = GREATEST(wishlist_count + $2, 0) WHERE id = $1`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	q querier
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{q: pool}
}

// Get returns the saved products, newest first.
func (r *WishlistRepository) Get(ctx context.Context, userID string) (*wishlist.Wishlist, error) {
	rows, err := r.q.Query(ctx, getWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting wishlist of %q: %w", userID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wishlist.Item, error) {
		var it wishlist.Item
		err := row.Scan(&it.ProductID, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting wishlist of %q: %w", userID, err)
	}
	return &wishlist.Wishlist{UserID: userID, Items: items}, nil
}

// Add saves a product and bumps its wishlist counter in one transaction.
func (r *WishlistRepository) Add(ctx context.Context, userID string, it wishlist.Item) error {
	return r.change(ctx, userID, it.ProductID, 1, func(tx pgx.Tx) (int64, error) {
		tag, err := tx.Exec(ctx, addWishlistItemSQL, userID, it.ProductID, it.AddedAt)
		return tag.RowsAffected(), err
	}, wishlist.ErrDuplicate)
}

// Remove deletes a saved product and decrements its wishlist counter.
func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	return r.change(ctx, userID, productID, -1, func(tx pgx.Tx) (int64, error) {
		tag, err := tx.Exec(ctx, removeWishlistItemSQL, userID, productID)
		return tag.RowsAffected(), err
	}, wishlist.ErrItemNotFound)
}

// change runs a single-row wishlist mutation and moves the product counter by
// delta when a row was affected. Otherwise it returns noop.
func (r *WishlistRepository) change(
	ctx context.Context,
	userID, productID string,
	delta int,
	mutate func(tx pgx.Tx) (int64, error),
	noop error,
) error {
	var unchanged bool
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		n, err := mutate(tx)
		if err != nil {
			return err
		}
		if n == 0 {
			unchanged = true
			return nil
		}
		_, err = tx.Exec(ctx, bumpWishlistCountSQL, productID, delta)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating wishlist of %q: %w", userID, err)
	}
	if unchanged {
		return noop
	}
	return nil
}
