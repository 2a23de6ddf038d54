package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

func (s *Store) CreateTenant(ctx context.Context, t *ports.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, plan, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Plan, t.Email, t.PasswordHash, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*ports.Tenant, error) {
	var t ports.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plan, email, password_hash, created_at, updated_at FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&t.ID, &t.Plan, &t.Email, &t.PasswordHash, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *ports.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET plan = $2, email = $3, password_hash = $4, updated_at = $5 WHERE id = $1`,
		t.ID, t.Plan, t.Email, t.PasswordHash, t.UpdatedAt)
	return err
}

func (s *Store) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	return err
}
