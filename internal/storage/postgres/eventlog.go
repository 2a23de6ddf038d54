package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Append assigns the next monotonic position for fleetID inside a single
// transaction — an UPDATE ... RETURNING on fleet_positions followed by the
// event insert — so two concurrent appends to the same fleet can never be
// handed the same position (invariant: positions are strictly increasing
// and contain every state-changing event a handler completed).
func (s *Store) Append(ctx context.Context, fleetID string, rec *ports.EventRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fleet_positions (fleet_id, next_position) VALUES ($1, 2)
		ON CONFLICT (fleet_id) DO NOTHING`, fleetID); err != nil {
		return 0, err
	}

	var position int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE fleet_positions SET next_position = next_position + 1
		WHERE fleet_id = $1
		RETURNING next_position - 1`, fleetID).Scan(&position); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, fleet_id, position, origin, kind, timestamp, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, fleetID, position, rec.Origin, rec.Kind, rec.Timestamp, rec.Payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return position, nil
}

// Scan streams every record in fleetID's log matching filter, ordered by
// position ascending, closing the returned channel once exhausted or ctx
// is cancelled. Time-window filtering is left to the caller, which is how
// eventlog.Replay narrows its [from, to] window. filter.Tags is not
// applied here (the payload carries tags, not a column), and
// eventlog.Replay does not filter by tag either.
func (s *Store) Scan(ctx context.Context, fleetID string, filter ports.ScanFilter) (<-chan *ports.EventRecord, error) {
	query := `SELECT id, fleet_id, position, origin, kind, timestamp, payload FROM events WHERE fleet_id = $1`
	args := []interface{}{fleetID}

	if filter.FromPosition > 0 {
		args = append(args, filter.FromPosition)
		query += fmt.Sprintf(" AND position >= $%d", len(args))
	}
	if filter.ToPosition > 0 {
		args = append(args, filter.ToPosition)
		query += fmt.Sprintf(" AND position <= $%d", len(args))
	}
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			args = append(args, k)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND kind IN (%s)", strings.Join(placeholders, ","))
	}
	if len(filter.Agents) > 0 {
		placeholders := make([]string, len(filter.Agents))
		for i, a := range filter.Agents {
			args = append(args, a)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND origin IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY position ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	out := make(chan *ports.EventRecord, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var rec ports.EventRecord
			if err := rows.Scan(&rec.ID, &rec.FleetID, &rec.Position, &rec.Origin, &rec.Kind, &rec.Timestamp, &rec.Payload); err != nil {
				return
			}
			select {
			case out <- &rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// EnforceRetention deletes every record in fleetID's log older than the
// tenant plan's retention window. The fleet_positions counter is left
// untouched so positions already handed out are never reused, even after
// their backing rows are compacted away.
func (s *Store) EnforceRetention(ctx context.Context, fleetID string, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE fleet_id = $1 AND timestamp < $2`, fleetID, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
