// Package presence implements the in-memory live-membership index (C3):
// one entry per (fleet, agent) while a session is live, with a periodic
// sweep for heartbeats that have gone stale.
package presence

import (
	"sync"
	"time"

	"github.com/streamspace-dev/ringforge/internal/errors"
)

// Valid self-reported states.
const (
	StateOnline = "online"
	StateBusy   = "busy"
	StateAway   = "away"
)

var validStates = map[string]bool{StateOnline: true, StateBusy: true, StateAway: true}

// ValidState reports whether s is an acceptable presence state; any other
// value is rejected with invalid_message by the caller.
func ValidState(s string) bool { return validStates[s] }

// StaleAfter is how long without a heartbeat before the sweeper removes an
// entry (default 90s).
const StaleAfter = 90 * time.Second

// SweepInterval is the minimum cadence of the sweeper (>= 15s).
const SweepInterval = 15 * time.Second

// Entry is one live session's presence record.
type Entry struct {
	AgentID      string
	Name         string
	State        string
	CurrentTask  string
	Capabilities []string
	LastHeartbeat time.Time
}

type key struct {
	fleetID string
	agentID string
}

// Index is the process-wide presence map. Offline is modeled as the
// absence of an entry, never as a stored state.
type Index struct {
	mu      sync.RWMutex
	entries map[key]*Entry
}

func NewIndex() *Index {
	return &Index{entries: make(map[key]*Entry)}
}

// Join creates a presence entry for a newly authenticated session. It is
// idempotent per (fleet, agent): a pre-existing entry (e.g. a race during
// reconnect) is replaced, matching "a presence entry exists iff an
// authenticated session exists".
func (idx *Index) Join(fleetID, agentID, name string, capabilities []string) *Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e := &Entry{
		AgentID:       agentID,
		Name:          name,
		State:         StateOnline,
		Capabilities:  capabilities,
		LastHeartbeat: time.Now(),
	}
	idx.entries[key{fleetID, agentID}] = e
	return e
}

// Leave removes the presence entry for an agent within a fleet, on
// graceful close or heartbeat timeout.
func (idx *Index) Leave(fleetID, agentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, key{fleetID, agentID})
}

// Update mutates state/task for a live entry and refreshes its heartbeat.
// An application-level state update acts as an implicit pong, so every
// call here also counts as a heartbeat.
func (idx *Index) Update(fleetID, agentID, state, task string) (*Entry, *errors.AppError) {
	if !ValidState(state) {
		return nil, errors.InvalidMessage("invalid presence state: " + state)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[key{fleetID, agentID}]
	if !ok {
		return nil, errors.NotFound("presence entry")
	}
	e.State = state
	e.CurrentTask = task
	e.LastHeartbeat = time.Now()
	return e, nil
}

// Heartbeat refreshes LastHeartbeat without changing state, for the plain
// ping/pong path.
func (idx *Index) Heartbeat(fleetID, agentID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[key{fleetID, agentID}]
	if !ok {
		return false
	}
	e.LastHeartbeat = time.Now()
	return true
}

// Get returns a copy of one agent's presence entry within a fleet.
func (idx *Index) Get(fleetID, agentID string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key{fleetID, agentID}]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Roster returns a snapshot of every live presence entry in a fleet.
func (idx *Index) Roster(fleetID string) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0)
	for k, e := range idx.entries {
		if k.fleetID == fleetID {
			out = append(out, *e)
		}
	}
	return out
}

// Sweep removes every entry across all fleets whose heartbeat is older
// than StaleAfter, invoking onStale for each removed (fleet, agent) so the
// caller can emit the "left" event and tear down the session.
func (idx *Index) Sweep(onStale func(fleetID, agentID string)) {
	now := time.Now()
	idx.mu.Lock()
	var stale []key
	for k, e := range idx.entries {
		if now.Sub(e.LastHeartbeat) >= StaleAfter {
			stale = append(stale, k)
			delete(idx.entries, k)
		}
	}
	idx.mu.Unlock()

	for _, k := range stale {
		onStale(k.fleetID, k.agentID)
	}
}
