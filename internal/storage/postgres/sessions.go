package postgres

import (
	"context"
	"time"

	"github.com/streamspace-dev/ringforge/internal/ports"
	"github.com/streamspace-dev/ringforge/internal/session"
)

func (s *Store) RecordSessionStart(ctx context.Context, sess *ports.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, connected_at, client_addr) VALUES ($1,$2,$3,$4)`,
		sess.ID, sess.AgentID, sess.ConnectedAt, sess.ClientAddr)
	return err
}

func (s *Store) RecordSessionEnd(ctx context.Context, sessionID, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET disconnected_at = $2, reason = $3 WHERE id = $1`,
		sessionID, at, reason)
	return err
}

func (s *Store) ListSessions(ctx context.Context, agentID string, limit int) ([]*ports.Session, error) {
	if limit <= 0 {
		limit = session.MaxHistoricalSessions
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, connected_at, disconnected_at, reason, client_addr
		FROM sessions WHERE agent_id = $1 ORDER BY connected_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Session
	for rows.Next() {
		var sess ports.Session
		if err := rows.Scan(&sess.ID, &sess.AgentID, &sess.ConnectedAt, &sess.DisconnectedAt, &sess.Reason, &sess.ClientAddr); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// PruneSessions deletes every session for an agent beyond the keep most
// recent, implementing the "at most 50 historical sessions" retention
// rule directly in SQL rather than pulling rows into Go first.
func (s *Store) PruneSessions(ctx context.Context, agentID string, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE agent_id = $1 AND id NOT IN (
			SELECT id FROM sessions WHERE agent_id = $1 ORDER BY connected_at DESC LIMIT $2
		)`, agentID, keep)
	return err
}
