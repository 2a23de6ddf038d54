package controlplane

import "time"

type createTenantRequest struct {
	Plan  string `json:"plan" validate:"omitempty,oneof=free pro scale enterprise"`
	Email string `json:"email" validate:"omitempty,email"`
}

type updateTenantRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free pro scale enterprise"`
}

type tenantResponse struct {
	ID        string    `json:"id"`
	Plan      string    `json:"plan"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type createFleetRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

type fleetResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type mintKeyRequest struct {
	FleetID string `json:"fleet_id"`
	Type    string `json:"type" validate:"required,oneof=live test admin"`
	TTL     string `json:"ttl"` // optional duration string, e.g. "720h"
}

type mintKeyResponse struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	Prefix    string     `json:"prefix"`
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type usageResponse struct {
	TenantID         string `json:"tenant_id"`
	Plan             string `json:"plan"`
	ConcurrentAgents int64  `json:"concurrent_agents"`
	MessagesToday    int64  `json:"messages_today"`
	MemoryEntries    int64  `json:"memory_entries"`
	Fleets           int64  `json:"fleets"`
	StorageBytes     int64  `json:"storage_bytes"`
}

type agentResponse struct {
	ID           string     `json:"id"`
	FleetID      string     `json:"fleet_id"`
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	Framework    string     `json:"framework,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
