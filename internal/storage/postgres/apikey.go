package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/eventpass/internal/domain/auth"
)

const getAPIKeyByHashSQL = `SELECT id, account_id, key_hash, name, scopes
	FROM api_keys WHERE key_hash = $1 AND active = TRUE`

const createAPIKeySQL = `INSERT INTO api_keys (account_id, key_hash, name, scopes)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE
	RETURNING id`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	q querier
}

// NewAPIKeyRepository returns an APIKeyRepository reading from d's pool.
func NewAPIKeyRepository(d *DB) *APIKeyRepository {
	return &APIKeyRepository{q: d.pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
// Returns an error wrapping pgx.ErrNoRows when no matching key exists.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.q.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.AccountID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("api key not found: %w", err)
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Create stores a key hash for an account, reactivating it if it exists.
func (r *APIKeyRepository) Create(ctx context.Context, k *auth.APIKeyInfo) error {
	if err := r.q.QueryRow(ctx, createAPIKeySQL, k.AccountID, k.KeyHash, k.Name, k.Scopes).Scan(&k.ID); err != nil {
		return fmt.Errorf("creating api key %q: %w", k.Name, err)
	}
	return nil
}
