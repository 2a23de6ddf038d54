package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

func (s *Store) CreateAPIKey(ctx context.Context, k *ports.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, fleet_id, type, prefix, hash, expires_at, revoked_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		k.ID, k.TenantID, k.FleetID, k.Type, k.Prefix, k.Hash, k.ExpiresAt, k.RevokedAt, k.CreatedAt)
	return err
}

// GetAPIKeyByPrefix is the hot path hit on every auth.request; the prefix
// column is indexed (UNIQUE) precisely so this stays a single index
// lookup rather than a hash scan over every key.
func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*ports.APIKey, error) {
	var k ports.APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, fleet_id, type, prefix, hash, expires_at, revoked_at, created_at
		FROM api_keys WHERE prefix = $1`, prefix,
	).Scan(&k.ID, &k.TenantID, &k.FleetID, &k.Type, &k.Prefix, &k.Hash, &k.ExpiresAt, &k.RevokedAt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, tenantID string) ([]*ports.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, fleet_id, type, prefix, hash, expires_at, revoked_at, created_at
		FROM api_keys WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.APIKey
	for rows.Next() {
		var k ports.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.FleetID, &k.Type, &k.Prefix, &k.Hash, &k.ExpiresAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *Store) RevokeAPIKey(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1`, keyID)
	return err
}
