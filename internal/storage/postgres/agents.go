package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

func (s *Store) UpsertAgent(ctx context.Context, a *ports.Agent) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, tenant_id, fleet_id, name, public_key, framework, capabilities,
			display_name, tags, metadata, total_connections, total_messages, last_seen_at,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			framework = EXCLUDED.framework,
			capabilities = EXCLUDED.capabilities,
			display_name = EXCLUDED.display_name,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			total_connections = EXCLUDED.total_connections,
			total_messages = EXCLUDED.total_messages,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.TenantID, a.FleetID, a.Name, a.PublicKey, a.Framework, pq.Array(a.Capabilities),
		a.DisplayName, pq.Array(a.Tags), metadata, a.TotalConnections, a.TotalMessages, a.LastSeenAt,
		a.CreatedAt, a.UpdatedAt)
	return err
}

const selectAgent = `SELECT id, tenant_id, fleet_id, name, public_key, framework, capabilities,
	display_name, tags, metadata, total_connections, total_messages, last_seen_at, created_at, updated_at
	FROM agents WHERE `

func (s *Store) scanAgent(row *sql.Row) (*ports.Agent, error) {
	var a ports.Agent
	var metadata []byte
	if err := row.Scan(&a.ID, &a.TenantID, &a.FleetID, &a.Name, &a.PublicKey, &a.Framework,
		pq.Array(&a.Capabilities), &a.DisplayName, pq.Array(&a.Tags), &metadata,
		&a.TotalConnections, &a.TotalMessages, &a.LastSeenAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (s *Store) GetAgent(ctx context.Context, tenantID, fleetID, agentID string) (*ports.Agent, error) {
	row := s.db.QueryRowContext(ctx, selectAgent+`tenant_id = $1 AND fleet_id = $2 AND id = $3`, tenantID, fleetID, agentID)
	a, err := s.scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return a, err
}

func (s *Store) GetAgentByName(ctx context.Context, tenantID, fleetID, name string) (*ports.Agent, error) {
	row := s.db.QueryRowContext(ctx, selectAgent+`tenant_id = $1 AND fleet_id = $2 AND name = $3`, tenantID, fleetID, name)
	a, err := s.scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return a, err
}

func (s *Store) ListAgents(ctx context.Context, tenantID, fleetID string) ([]*ports.Agent, error) {
	rows, err := s.db.QueryContext(ctx, selectAgent+`tenant_id = $1 AND fleet_id = $2 ORDER BY created_at`, tenantID, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Agent
	for rows.Next() {
		var a ports.Agent
		var metadata []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &a.FleetID, &a.Name, &a.PublicKey, &a.Framework,
			pq.Array(&a.Capabilities), &a.DisplayName, pq.Array(&a.Tags), &metadata,
			&a.TotalConnections, &a.TotalMessages, &a.LastSeenAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAgent(ctx context.Context, tenantID, fleetID, agentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE tenant_id = $1 AND fleet_id = $2 AND id = $3`, tenantID, fleetID, agentID)
	return err
}

func (s *Store) TouchAgentLastSeen(ctx context.Context, agentID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_seen_at = $2, updated_at = $2 WHERE id = $1`, agentID, at)
	return err
}
