// Package events relays fleet-bus traffic across instances of the
// coordination hub via NATS, so a horizontally-scaled deployment's other
// instances fan an event out to their own locally-connected sessions. It is
// an optional cross-instance extension of C2's in-process pub/sub: a
// single-instance deployment never needs it and the relay degrades to a
// no-op when NATS_URL is unset.
//
// Subject format: ringforge.fleet.<tenant>.<fleet>
package events

import "fmt"

const subjectPrefix = "ringforge.fleet"

// FleetSubject returns the NATS subject a given (tenant, fleet) pair
// republishes its bus traffic on.
func FleetSubject(tenantID, fleetID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, tenantID, fleetID)
}

// FleetWildcard returns a subject pattern matching every fleet belonging to
// a tenant, used when an instance wants to subscribe broadly (e.g. for
// audit tooling) rather than per-fleet.
func FleetWildcard(tenantID string) string {
	return fmt.Sprintf("%s.%s.*", subjectPrefix, tenantID)
}
