package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
)

var (
	_ order.Transactor     = (*TxManager)(nil)
	_ inventory.Transactor = (*TxManager)(nil)
)

// TxManager runs units of work in PostgreSQL transactions. The transaction
// commits when the callback returns nil and rolls back otherwise.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager returns a TxManager that uses the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx implements order.Transactor.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, uow order.UnitOfWork) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(ctx, unitOfWork{tx: tx})
	})
}

// WithinStockTx implements inventory.Transactor.
func (m *TxManager) WithinStockTx(ctx context.Context, fn func(ctx context.Context, store inventory.Store) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(ctx, &StockStore{q: tx})
	})
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u unitOfWork) Orders() order.Repository { return &OrderRepository{q: u.tx} }
func (u unitOfWork) Carts() order.CartStore { return &CartRepository{q: u.tx} }
func (u unitOfWork) Products() cart.ProductLookup { return &ProductRepository{q: u.tx} }
func (u unitOfWork) Stock() inventory.Store { return &StockStore{q: u.tx} }
