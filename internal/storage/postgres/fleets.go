package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

func (s *Store) CreateFleet(ctx context.Context, f *ports.Fleet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fleets (id, tenant_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.TenantID, f.Name, f.CreatedAt, f.UpdatedAt)
	return err
}

// GetFleet scopes the lookup to tenantID so a caller can never resolve a
// fleet belonging to another tenant by id guessing.
func (s *Store) GetFleet(ctx context.Context, tenantID, fleetID string) (*ports.Fleet, error) {
	return s.queryFleet(ctx, `SELECT id, tenant_id, name, created_at, updated_at FROM fleets WHERE tenant_id = $1 AND id = $2`, tenantID, fleetID)
}

func (s *Store) GetFleetByName(ctx context.Context, tenantID, name string) (*ports.Fleet, error) {
	return s.queryFleet(ctx, `SELECT id, tenant_id, name, created_at, updated_at FROM fleets WHERE tenant_id = $1 AND name = $2`, tenantID, name)
}

func (s *Store) queryFleet(ctx context.Context, query string, args ...interface{}) (*ports.Fleet, error) {
	var f ports.Fleet
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&f.ID, &f.TenantID, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) ListFleets(ctx context.Context, tenantID string) ([]*ports.Fleet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, created_at, updated_at FROM fleets WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Fleet
	for rows.Next() {
		var f ports.Fleet
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ListAllFleets returns every fleet across every tenant, for maintenance
// tasks (the retention sweeper) that must walk the whole fleet set rather
// than one tenant's.
func (s *Store) ListAllFleets(ctx context.Context) ([]*ports.Fleet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, created_at, updated_at FROM fleets ORDER BY tenant_id, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Fleet
	for rows.Next() {
		var f ports.Fleet
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFleet(ctx context.Context, tenantID, fleetID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fleets WHERE tenant_id = $1 AND id = $2`, tenantID, fleetID)
	return err
}
