// Package agent implements the durable participant identity: registration
// on first authenticated connect, profile management, capability sets, and
// the counters/last-seen bookkeeping that survive across sessions.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Service manages agent identity lifecycle against the metadata store.
type Service struct {
	store ports.AgentStore
}

func NewService(store ports.AgentStore) *Service {
	return &Service{store: store}
}

// Resolve finds or mints the durable agent identity for a (fleet, name)
// pair. An agent id is minted once per name+fleet and persists across
// disconnects; a second connect under the same name reuses it.
func (s *Service) Resolve(ctx context.Context, tenantID, fleetID, name, framework string, capabilities []string) (*ports.Agent, error) {
	existing, err := s.store.GetAgentByName(ctx, tenantID, fleetID, name)
	if err == nil && existing != nil {
		existing.LastSeenAt = timePtr(time.Now())
		existing.TotalConnections++
		if framework != "" {
			existing.Framework = framework
		}
		if len(capabilities) > 0 {
			existing.Capabilities = capabilities
		}
		if err := s.store.UpsertAgent(ctx, existing); err != nil {
			return nil, errors.DatabaseError(err)
		}
		return existing, nil
	}

	now := time.Now()
	a := &ports.Agent{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		FleetID:          fleetID,
		Name:             name,
		Framework:        framework,
		Capabilities:     capabilities,
		DisplayName:      name,
		Metadata:         map[string]interface{}{},
		TotalConnections: 1,
		LastSeenAt:       &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.UpsertAgent(ctx, a); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, tenantID, fleetID, agentID string) (*ports.Agent, error) {
	a, err := s.store.GetAgent(ctx, tenantID, fleetID, agentID)
	if err != nil {
		return nil, errors.NotFound("agent")
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, tenantID, fleetID string) ([]*ports.Agent, error) {
	as, err := s.store.ListAgents(ctx, tenantID, fleetID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return as, nil
}

// RegisterPublicKey stores the public key used for challenge-response
// reconnects, replacing any previous key.
func (s *Service) RegisterPublicKey(ctx context.Context, a *ports.Agent, publicKey string) error {
	a.PublicKey = publicKey
	a.UpdatedAt = time.Now()
	if err := s.store.UpsertAgent(ctx, a); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// UpdateProfile mutates the agent's display name, tags, and metadata.
func (s *Service) UpdateProfile(ctx context.Context, a *ports.Agent, displayName string, tags []string, metadata map[string]interface{}) error {
	if displayName != "" {
		a.DisplayName = displayName
	}
	if tags != nil {
		a.Tags = tags
	}
	if metadata != nil {
		a.Metadata = metadata
	}
	a.UpdatedAt = time.Now()
	if err := s.store.UpsertAgent(ctx, a); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// TouchLastSeen records activity on an agent, used on every inbound frame
// to keep LastSeenAt current without the cost of a full profile write.
func (s *Service) TouchLastSeen(ctx context.Context, agentID string) error {
	return s.store.TouchAgentLastSeen(ctx, agentID, time.Now())
}

// IncrementMessages is called on every routed message the agent originates.
func (s *Service) IncrementMessages(ctx context.Context, a *ports.Agent) error {
	a.TotalMessages++
	if err := s.store.UpsertAgent(ctx, a); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// HasCapabilities reports whether an agent's capability set is a superset
// of the required set (used by task routing).
func HasCapabilities(agentCaps, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(agentCaps))
	for _, c := range agentCaps {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

func (s *Service) Delete(ctx context.Context, tenantID, fleetID, agentID string) error {
	if err := s.store.DeleteAgent(ctx, tenantID, fleetID, agentID); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
