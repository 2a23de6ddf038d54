package ports

import "time"

// Tenant is the billing/isolation unit.
type Tenant struct {
	ID           string
	Plan         string // free | pro | scale | enterprise
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fleet is a logical namespace inside a tenant.
type Fleet struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Agent is the durable identity of a participant.
type Agent struct {
	ID              string
	TenantID        string
	FleetID         string
	Name            string
	PublicKey       string // optional, for challenge-response re-auth
	Framework       string
	Capabilities    []string
	DisplayName     string
	Tags            []string
	Metadata        map[string]interface{}
	TotalConnections int64
	TotalMessages    int64
	LastSeenAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// APIKey is an opaque capability token, stored only as a hash.
type APIKey struct {
	ID        string
	TenantID  string
	FleetID   string // empty for admin keys, which are tenant-scoped
	Type      string // live | test | admin
	Prefix    string
	Hash      string
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Session is one live connection instance of an agent.
type Session struct {
	ID            string
	AgentID       string
	ConnectedAt   time.Time
	DisconnectedAt *time.Time
	Reason        string
	ClientAddr    string
}

// Group is a named subset of agents within a fleet.
type Group struct {
	ID        string
	TenantID  string
	FleetID   string
	Name      string
	Kind      string // squad | pod | channel
	Dissolved bool
	CreatedAt time.Time
}

// EventRecord is one entry in a fleet's durable event log.
type EventRecord struct {
	ID        string
	FleetID   string
	Position  int64
	Origin    string
	Kind      string
	Timestamp time.Time
	Payload   []byte
}

// AuditRecord is one entry in the security audit trail.
type AuditRecord struct {
	ID        string
	TenantID  string
	FleetID   string
	Actor     string
	Action    string
	Detail    string
	Timestamp time.Time
}
