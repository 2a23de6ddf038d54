// Package eventlog implements the durable per-fleet append-only log and
// its filtered one-shot replay stream (X1).
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Kinds of durable record. Every state-changing operation appends one of
// these before (or concurrently with) fan-out.
const (
	KindJoin            = "join"
	KindLeave           = "left"
	KindPresenceChanged = "state_changed"
	KindActivity        = "activity"
	KindMemorySet       = "memory_set"
	KindMemoryDelete    = "memory_delete"
	KindDirectMessage   = "direct_message"
	KindTaskTransition  = "task_transition"
	KindSecurityAudit   = "security_audit"
)

// Log appends to and reads from a fleet's durable event log via the
// MetadataStore-independent EventLog port.
type Log struct {
	store ports.EventLog
}

func NewLog(store ports.EventLog) *Log {
	return &Log{store: store}
}

// Append marshals payload and appends one record to fleetID's log,
// returning its monotonic position. State-changing handlers must await
// this before publishing to the bus (fail-closed: a failed append means no
// broadcast).
func (l *Log) Append(ctx context.Context, fleetID, origin, kind string, payload interface{}) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.InvalidMessage("unable to encode event payload")
	}
	rec := &ports.EventRecord{
		ID:        uuid.NewString(),
		FleetID:   fleetID,
		Origin:    origin,
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   data,
	}
	pos, err := l.store.Append(ctx, fleetID, rec)
	if err != nil {
		return 0, errors.Unavailable("event log")
	}
	return pos, nil
}

// EnforceRetention removes records older than the tenant plan's retention
// window.
func (l *Log) EnforceRetention(ctx context.Context, fleetID string, olderThan time.Time) (int64, error) {
	n, err := l.store.EnforceRetention(ctx, fleetID, olderThan)
	if err != nil {
		return 0, errors.DatabaseError(err)
	}
	return n, nil
}
