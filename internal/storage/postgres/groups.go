package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

func (s *Store) CreateGroup(ctx context.Context, g *ports.Group) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, tenant_id, fleet_id, name, kind, dissolved, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		g.ID, g.TenantID, g.FleetID, g.Name, g.Kind, g.Dissolved, g.CreatedAt)
	return err
}

func (s *Store) GetGroup(ctx context.Context, tenantID, fleetID, groupID string) (*ports.Group, error) {
	var g ports.Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, fleet_id, name, kind, dissolved, created_at
		FROM groups WHERE tenant_id = $1 AND fleet_id = $2 AND id = $3`, tenantID, fleetID, groupID,
	).Scan(&g.ID, &g.TenantID, &g.FleetID, &g.Name, &g.Kind, &g.Dissolved, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, tenantID, fleetID string) ([]*ports.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, fleet_id, name, kind, dissolved, created_at
		FROM groups WHERE tenant_id = $1 AND fleet_id = $2 ORDER BY created_at`, tenantID, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Group
	for rows.Next() {
		var g ports.Group
		if err := rows.Scan(&g.ID, &g.TenantID, &g.FleetID, &g.Name, &g.Kind, &g.Dissolved, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, agentID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, agent_id, role) VALUES ($1,$2,$3)
		ON CONFLICT (group_id, agent_id) DO UPDATE SET role = EXCLUDED.role`, groupID, agentID, role)
	return err
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, agentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND agent_id = $2`, groupID, agentID)
	return err
}

// DissolveGroup marks a group terminal without deleting its row, so its
// membership history survives for audit purposes.
func (s *Store) DissolveGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE groups SET dissolved = true WHERE id = $1`, groupID)
	return err
}
