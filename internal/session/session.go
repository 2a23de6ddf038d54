// Package session implements the connection gateway's state machine (C1):
// the four-state lifecycle of one live connection instance, and the
// durable Session history record kept per agent (at most 50 retained).
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// State is one node of the four-state connection lifecycle.
type State int

const (
	StateNew State = iota
	StateAwaitingAuth
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons recorded on the durable Session row.
const (
	ReasonGraceful         = "graceful"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonAuthFailed       = "auth_failed"
	ReasonServerKick       = "server_kick"
	ReasonBackpressure     = "unavailable"
)

// MaxHistoricalSessions bounds how many past sessions are retained per
// agent; older rows are pruned.
const MaxHistoricalSessions = 50

// Transition validates a requested move against the state machine in
// It does not mutate anything; callers apply the side effects
// (registering presence, emitting bus events) only after this succeeds.
func Transition(from State, event string) (State, *errors.AppError) {
	switch from {
	case StateNew:
		if event == "auth_req" {
			return StateAwaitingAuth, nil
		}
	case StateAwaitingAuth:
		switch event {
		case "auth_ok":
			return StateActive, nil
		case "auth_fail", "timeout":
			return StateClosed, nil
		}
	case StateActive:
		switch event {
		case "disconnect", "server_kick", "heartbeat_timeout":
			return StateClosed, nil
		}
	}
	return from, errors.InvalidMessage("invalid session transition: " + from.String() + " -> " + event)
}

// Service manages the durable Session history rows.
type Service struct {
	store ports.SessionStore
}

func NewService(store ports.SessionStore) *Service {
	return &Service{store: store}
}

// Start records a new live session and prunes history beyond the retained
// window.
func (s *Service) Start(ctx context.Context, agentID, clientAddr string) (*ports.Session, error) {
	sess := &ports.Session{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		ConnectedAt: time.Now(),
		ClientAddr:  clientAddr,
	}
	if err := s.store.RecordSessionStart(ctx, sess); err != nil {
		return nil, errors.DatabaseError(err)
	}
	if err := s.store.PruneSessions(ctx, agentID, MaxHistoricalSessions); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return sess, nil
}

// End records the disconnect reason and timestamp on a session's history
// row.
func (s *Service) End(ctx context.Context, sessionID, reason string) error {
	if err := s.store.RecordSessionEnd(ctx, sessionID, reason, time.Now()); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

func (s *Service) History(ctx context.Context, agentID string, limit int) ([]*ports.Session, error) {
	sessions, err := s.store.ListSessions(ctx, agentID, limit)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return sessions, nil
}
