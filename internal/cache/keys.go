// Package cache provides Redis-based caching for the RingForge coordination hub.
//
// This file defines the key naming conventions used by the rate-limit,
// idempotency, and quota layers that sit in front of every handler.
//
// Key Naming Convention:
//   - Format: {prefix}:{scope}:{identifier}
//   - Example: ratelimit:auth:203.0.113.5
//   - Example: idem:agent-42:client-ref-9
//   - Example: quota:tenant-acme:messages-today
package cache

import "fmt"

// Key prefixes for different resource types
const (
	PrefixRateLimit  = "ratelimit"
	PrefixIdempotent = "idem"
	PrefixQuota      = "quota"
	PrefixPresence   = "presence"
)

// RateLimitKey builds the sliding-window counter key for a given scope and
// subject (source address, session id, agent id, or API key id).
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", PrefixRateLimit, scope, subject)
}

// IdempotencyKey builds the cached-response key for a mutating operation,
// keyed by the requesting agent and the client-supplied ref.
func IdempotencyKey(agentID, ref string) string {
	return fmt.Sprintf("%s:%s:%s", PrefixIdempotent, agentID, ref)
}

// QuotaCounterKey builds the gauge/counter key for a tenant-scoped quota.
func QuotaCounterKey(tenantID, counter string) string {
	return fmt.Sprintf("%s:%s:%s", PrefixQuota, tenantID, counter)
}

// PresenceKey builds the last-seen key for an agent within a fleet, used by
// instances that share presence state through Redis rather than memory.
func PresenceKey(fleetID, agentID string) string {
	return fmt.Sprintf("%s:%s:%s", PrefixPresence, fleetID, agentID)
}

func QuotaPattern(tenantID string) string {
	return fmt.Sprintf("%s:%s:*", PrefixQuota, tenantID)
}
