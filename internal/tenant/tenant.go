// Package tenant implements the billing/isolation unit: creation, plan
// management, and deletion cascades through every per-tenant prefix.
package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// ValidPlans enumerates the allowed plan values.
var ValidPlans = map[string]bool{"free": true, "pro": true, "scale": true, "enterprise": true}

// Service manages tenant lifecycle against the metadata store.
type Service struct {
	store ports.TenantStore
}

func NewService(store ports.TenantStore) *Service {
	return &Service{store: store}
}

// Create registers a new tenant on the given plan, defaulting to free.
func (s *Service) Create(ctx context.Context, plan, email, passwordHash string) (*ports.Tenant, error) {
	if plan == "" {
		plan = "free"
	}
	if !ValidPlans[plan] {
		return nil, errors.InvalidMessage("unknown plan: " + plan)
	}
	now := time.Now()
	t := &ports.Tenant{
		ID:           uuid.NewString(),
		Plan:         plan,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID string) (*ports.Tenant, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, errors.NotFound("tenant")
	}
	return t, nil
}

// UpdatePlan changes a tenant's plan, which also changes the quota table
// and event-log retention window applied to it going forward.
func (s *Service) UpdatePlan(ctx context.Context, tenantID, plan string) (*ports.Tenant, error) {
	if !ValidPlans[plan] {
		return nil, errors.InvalidMessage("unknown plan: " + plan)
	}
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, errors.NotFound("tenant")
	}
	t.Plan = plan
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return t, nil
}

// Delete removes a tenant; the store is responsible for cascading the
// deletion through every per-tenant prefix (fleets, agents, keys, etc).
func (s *Service) Delete(ctx context.Context, tenantID string) error {
	if err := s.store.DeleteTenant(ctx, tenantID); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}
