package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	createCustomerSQL = `INSERT INTO customers (id, email, name, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getCustomerByEmailSQL = `SELECT id, email, name, phone, password_hash, created_at
		FROM customers WHERE email = $1`
)

var _ auth.CustomerRepository = (*CustomerRepository)(nil)

// CustomerRepository implements auth.CustomerRepository backed by PostgreSQL.
type CustomerRepository struct {
	q querier
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{q: pool}
}

// Create inserts a customer. The email must already be normalized.
func (r *CustomerRepository) Create(ctx context.Context, c *auth.Customer) error {
	_, err := r.q.Exec(ctx, createCustomerSQL, c.ID, c.Email, c.Name, c.Phone, c.PasswordHash, c.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("creating customer %q: %w", c.Email, err)
	}
	return nil
}

// FindByEmail returns the customer with the given normalized email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*auth.Customer, error) {
	var c auth.Customer
	err := r.q.QueryRow(ctx, getCustomerByEmailSQL, email).Scan(
		&c.ID, &c.Email, &c.Name, &c.Phone, &c.PasswordHash, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("finding customer %q: %w", email, err)
	}
	return &c, nil
}
