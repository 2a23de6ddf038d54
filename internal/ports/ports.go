// Package ports defines the interfaces through which the coordination core
// reaches its external collaborators: durable metadata storage, the event
// log, presigned blob URLs, and the audit trail. Every port is substitutable
// — tests wire in-memory fakes, production wires networked implementations
// — and none of it is part of the core's own concurrency or routing logic.
package ports

import (
	"context"
	"time"
)

// MetadataStore is durable CRUD for tenants, fleets, agents, keys, sessions,
// and groups; audit records go through AuditSink. Each entity operation is transactional on its
// own; the store is not expected to provide cross-entity distributed
// transactions.
type MetadataStore interface {
	TenantStore
	FleetStore
	AgentStore
	APIKeyStore
	SessionStore
	GroupStore
}

type TenantStore interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	UpdateTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, tenantID string) error
}

type FleetStore interface {
	CreateFleet(ctx context.Context, f *Fleet) error
	GetFleet(ctx context.Context, tenantID, fleetID string) (*Fleet, error)
	GetFleetByName(ctx context.Context, tenantID, name string) (*Fleet, error)
	ListFleets(ctx context.Context, tenantID string) ([]*Fleet, error)
	// ListAllFleets returns every fleet across every tenant, used by the
	// retention sweeper to apply each tenant's plan-specific window without
	// requiring the caller to already know every tenant id.
	ListAllFleets(ctx context.Context) ([]*Fleet, error)
	DeleteFleet(ctx context.Context, tenantID, fleetID string) error
}

type AgentStore interface {
	UpsertAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, tenantID, fleetID, agentID string) (*Agent, error)
	GetAgentByName(ctx context.Context, tenantID, fleetID, name string) (*Agent, error)
	ListAgents(ctx context.Context, tenantID, fleetID string) ([]*Agent, error)
	DeleteAgent(ctx context.Context, tenantID, fleetID, agentID string) error
	TouchAgentLastSeen(ctx context.Context, agentID string, at time.Time) error
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID string) ([]*APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

type SessionStore interface {
	RecordSessionStart(ctx context.Context, s *Session) error
	RecordSessionEnd(ctx context.Context, sessionID, reason string, at time.Time) error
	ListSessions(ctx context.Context, agentID string, limit int) ([]*Session, error)
	PruneSessions(ctx context.Context, agentID string, keep int) error
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, tenantID, fleetID, groupID string) (*Group, error)
	ListGroups(ctx context.Context, tenantID, fleetID string) ([]*Group, error)
	AddGroupMember(ctx context.Context, groupID, agentID, role string) error
	RemoveGroupMember(ctx context.Context, groupID, agentID string) error
	DissolveGroup(ctx context.Context, groupID string) error
}

// EventLog is the durable per-fleet append-only log backing X1.
type EventLog interface {
	Append(ctx context.Context, fleetID string, record *EventRecord) (position int64, err error)
	Scan(ctx context.Context, fleetID string, filter ScanFilter) (<-chan *EventRecord, error)
	EnforceRetention(ctx context.Context, fleetID string, olderThan time.Time) (deleted int64, err error)
}

// ScanFilter narrows a replay scan to the caller's requested window.
type ScanFilter struct {
	FromPosition int64
	ToPosition   int64 // 0 means unbounded
	Kinds        []string
	Tags         []string
	Agents       []string
	Limit        int
}

// BlobSigner hands out short-lived presigned URLs for out-of-band blob
// transfer. The core never moves file bytes itself.
type BlobSigner interface {
	PresignedPut(ctx context.Context, filename, contentType string, size int64) (fileID, url string, expires time.Time, err error)
	PresignedGet(ctx context.Context, fileID string) (url string, expires time.Time, err error)
}

// AuditSink records security-relevant actions for compliance review.
type AuditSink interface {
	Record(ctx context.Context, rec *AuditRecord) error
}
