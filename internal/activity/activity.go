// Package activity implements the immutable broadcast record an agent
// emits for peers to observe: task lifecycle notices, discoveries,
// questions, alerts, and custom events.
package activity

import (
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/fleet"
)

// Kinds of activity broadcast.
const (
	KindTaskStarted   = "task_started"
	KindTaskProgress  = "task_progress"
	KindTaskCompleted = "task_completed"
	KindTaskFailed    = "task_failed"
	KindDiscovery     = "discovery"
	KindQuestion      = "question"
	KindAlert         = "alert"
	KindCustom        = "custom"
	KindJoin          = "join"
	KindLeave         = "leave"
)

var validKinds = map[string]bool{
	KindTaskStarted: true, KindTaskProgress: true, KindTaskCompleted: true,
	KindTaskFailed: true, KindDiscovery: true, KindQuestion: true,
	KindAlert: true, KindCustom: true, KindJoin: true, KindLeave: true,
}

// Event is one immutable broadcast record.
type Event struct {
	ID          string
	FleetID     string
	Origin      string
	Kind        string
	Description string
	Tags        []string
	Data        map[string]interface{}
	Timestamp   time.Time
}

// New validates and constructs a broadcast event; it does not publish or
// persist it, both of which the caller sequences (event log append before
// fan-out).
func New(fleetID, origin, kind, description string, tags []string, data map[string]interface{}) (*Event, *errors.AppError) {
	if !validKinds[kind] {
		return nil, errors.InvalidMessage("unknown activity kind: " + kind)
	}
	return &Event{
		ID:          uuid.NewString(),
		FleetID:     fleetID,
		Origin:      origin,
		Kind:        kind,
		Description: description,
		Tags:        tags,
		Data:        data,
		Timestamp:   time.Now(),
	}, nil
}

// ResolveScope derives the fleet-bus Scope an activity should be delivered
// under: the caller's explicit request (fleet/tagged/direct), defaulting
// to the whole fleet.
func ResolveScope(requested string, tags []string, directAgent string) fleet.Scope {
	switch requested {
	case "tagged":
		return fleet.TaggedScope(tags)
	case "direct":
		return fleet.DirectScope(directAgent)
	default:
		return fleet.FleetScope()
	}
}
