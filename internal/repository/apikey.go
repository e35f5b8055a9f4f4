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
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, kind, subject_id, email, scopes, created_at
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	createAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, kind, subject_id, email, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

var _ auth.KeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	q querier
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{q: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.KeyRecord, error) {
	var (
		rec  auth.KeyRecord
		kind string
	)
	err := r.q.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&rec.ID, &rec.KeyHash, &rec.Name, &kind, &rec.SubjectID, &rec.Email, &rec.Scopes, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	rec.Kind = auth.Kind(kind)
	return &rec, nil
}

// Create stores a new active key.
func (r *APIKeyRepository) Create(ctx context.Context, rec *auth.KeyRecord) error {
	scopes := rec.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.q.Exec(ctx, createAPIKeySQL,
		rec.ID, rec.KeyHash, rec.Name, string(rec.Kind), rec.SubjectID, rec.Email, scopes, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating api key %q: %w", rec.ID, err)
	}
	return nil
}
