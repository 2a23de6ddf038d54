// Package fleet implements the tenant-scoped namespace entity (Fleet) and
// the per-fleet pub/sub topic bus that routes broadcasts to subscribers
// (C2 Fleet Router & Pub/Sub).
package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Service manages fleet lifecycle against the metadata store. Deletion
// relies on the store's own cascade (see Delete), not on code here.
type Service struct {
	store ports.FleetStore
}

func NewService(store ports.FleetStore) *Service {
	return &Service{store: store}
}

// Create registers a new fleet. (tenant, name) must be unique: an existing
// fleet with the same name yields conflict; any store error on insert
// (including a unique-constraint race) is returned as a database error.
func (s *Service) Create(ctx context.Context, tenantID, name string) (*ports.Fleet, error) {
	if name == "" {
		return nil, errors.InvalidMessage("fleet name required")
	}
	if existing, _ := s.store.GetFleetByName(ctx, tenantID, name); existing != nil {
		return nil, errors.Conflict("fleet name already in use")
	}
	now := time.Now()
	f := &ports.Fleet{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateFleet(ctx, f); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return f, nil
}

// Get resolves a fleet scoped to its tenant. Any store miss, including a
// fleet id that belongs to another tenant, returns not_found; tenantID
// comes from the caller's authenticated context, never the payload.
func (s *Service) Get(ctx context.Context, tenantID, fleetID string) (*ports.Fleet, error) {
	f, err := s.store.GetFleet(ctx, tenantID, fleetID)
	if err != nil {
		return nil, errors.NotFound("fleet")
	}
	return f, nil
}

func (s *Service) GetByName(ctx context.Context, tenantID, name string) (*ports.Fleet, error) {
	f, err := s.store.GetFleetByName(ctx, tenantID, name)
	if err != nil {
		return nil, errors.NotFound("fleet")
	}
	return f, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*ports.Fleet, error) {
	fs, err := s.store.ListFleets(ctx, tenantID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return fs, nil
}

// Delete removes a fleet row; the store's foreign keys cascade into the
// fleet's agents (and their sessions) and groups. Audit rows, event-log
// records and the in-process memory store are not removed, and live
// sessions and the fleet's bus topic are left as they are: connected
// agents are not disconnected.
func (s *Service) Delete(ctx context.Context, tenantID, fleetID string) error {
	if err := s.store.DeleteFleet(ctx, tenantID, fleetID); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}
