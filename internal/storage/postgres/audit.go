package postgres

import (
	"context"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Record appends one entry to the tenant's audit trail. Audit writes are
// best-effort from the caller's perspective but never silently dropped:
// a failed insert returns an error the caller can log and alert on.
func (s *Store) Record(ctx context.Context, rec *ports.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, fleet_id, actor, action, detail, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.TenantID, rec.FleetID, rec.Actor, rec.Action, rec.Detail, rec.Timestamp)
	return err
}
