// C2 Fleet Router & Pub/Sub: one logical topic per fleet, fanning events to
// the sessions currently subscribed to it.
package fleet

import (
	"sync"

	"github.com/streamspace-dev/ringforge/internal/errors"
	"github.com/streamspace-dev/ringforge/internal/events"
	"github.com/streamspace-dev/ringforge/internal/logger"
)

// outboxSize bounds how many events a slow subscriber can fall behind
// before it is dropped from fan-out for subsequent events (durability is
// the event log's job, not the bus's).
const outboxSize = 256

// Scope narrows delivery of a published event.
type Scope struct {
	Kind   string // "fleet" | "tagged" | "direct"
	Tags   []string
	Agent  string
}

func FleetScope() Scope           { return Scope{Kind: "fleet"} }
func TaggedScope(tags []string) Scope { return Scope{Kind: "tagged", Tags: tags} }
func DirectScope(agentID string) Scope { return Scope{Kind: "direct", Agent: agentID} }

// Subscriber is one live session's mailbox on the bus.
type Subscriber struct {
	SessionID string
	AgentID   string
	Outbox    chan []byte

	mu   sync.RWMutex
	tags map[string]bool
}

func newSubscriber(sessionID, agentID string) *Subscriber {
	return &Subscriber{
		SessionID: sessionID,
		AgentID:   agentID,
		Outbox:    make(chan []byte, outboxSize),
		tags:      make(map[string]bool),
	}
}

// SubscribeTags adds tag subtopics this session additionally wants.
func (s *Subscriber) SubscribeTags(tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tags {
		s.tags[t] = true
	}
}

func (s *Subscriber) matchesTags(tags []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range tags {
		if s.tags[t] {
			return true
		}
	}
	return false
}

type topic struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber // sessionID -> subscriber
}

// Bus is the process-wide fleet router: one topic per (tenant, fleet),
// looked up by a composite key so a lookup failure can never accidentally
// cross a tenant boundary.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string]*topic
	tenants map[string]string // fleetID -> tenantID, for lookups that only have a fleet id
	relay   *events.Relay
}

func NewBus(relay *events.Relay) *Bus {
	return &Bus{topics: make(map[string]*topic), tenants: make(map[string]string), relay: relay}
}

func topicKey(tenantID, fleetID string) string { return tenantID + "/" + fleetID }

func (b *Bus) topicFor(tenantID, fleetID string, create bool) *topic {
	key := topicKey(tenantID, fleetID)
	b.mu.RLock()
	t, ok := b.topics[key]
	b.mu.RUnlock()
	if ok || !create {
		return t
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[key]; ok {
		return t
	}
	t = &topic{subscribers: make(map[string]*Subscriber)}
	b.topics[key] = t
	b.tenants[fleetID] = tenantID
	if b.relay != nil && b.relay.Enabled() {
		_ = b.relay.SubscribeFleet(tenantID, fleetID, func(ev *events.RelayedEvent) {
			b.deliverLocal(tenantID, fleetID, ev.Payload, FleetScope())
		})
	}
	return t
}

// TenantOf returns the tenant owning fleetID, if the fleet's topic has ever
// been created (i.e. at least one session has authenticated into it this
// process's lifetime).
func (b *Bus) TenantOf(fleetID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tenants[fleetID]
	return t, ok
}

// ActiveFleetIDs returns every fleet with a live topic in this process,
// i.e. every fleet that has had at least one authenticated session since
// boot. Used by the task claim-timeout sweeper to know which fleets to
// re-check without querying the metadata store on every tick.
func (b *Bus) ActiveFleetIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.tenants))
	for fleetID := range b.tenants {
		out = append(out, fleetID)
	}
	return out
}

// Subscribe registers a session on a fleet's topic and returns its
// subscriber handle; the caller reads Outbox to drive its write pump.
func (b *Bus) Subscribe(tenantID, fleetID, sessionID, agentID string) *Subscriber {
	t := b.topicFor(tenantID, fleetID, true)
	sub := newSubscriber(sessionID, agentID)
	t.mu.Lock()
	t.subscribers[sessionID] = sub
	t.mu.Unlock()
	return sub
}

// Unsubscribe removes a session from a fleet's topic, e.g. on disconnect.
func (b *Bus) Unsubscribe(tenantID, fleetID, sessionID string) {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.subscribers, sessionID)
	t.mu.Unlock()
}

// Publish fans an already-durable event out to matching subscribers of
// (tenantID, fleetID). A topic lookup failure is reported as forbidden
// rather than not_found, so a caller can't use the response to probe for
// the existence of fleets it doesn't belong to.
func (b *Bus) Publish(tenantID, fleetID string, frame []byte, scope Scope) error {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return errors.Forbidden("fleet topic not found")
	}
	b.deliverLocal(tenantID, fleetID, frame, scope)
	if b.relay != nil && b.relay.Enabled() {
		if err := b.relay.Publish(tenantID, fleetID, "", "bus", frame); err != nil {
			logger.Fleet().Warn().Err(err).Msg("failed to relay fleet event to NATS")
		}
	}
	return nil
}

func (b *Bus) deliverLocal(tenantID, fleetID string, frame []byte, scope Scope) {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subscribers {
		if !matches(sub, scope) {
			continue
		}
		select {
		case sub.Outbox <- frame:
		default:
			// Slow/backpressured subscriber: best-effort delivery drops this
			// event for this subscriber only. The event log retains it.
			logger.Fleet().Warn().Str("session", sub.SessionID).Msg("dropping event for slow subscriber")
		}
	}
}

func matches(sub *Subscriber, scope Scope) bool {
	switch scope.Kind {
	case "direct":
		return sub.AgentID == scope.Agent
	case "tagged":
		return sub.matchesTags(scope.Tags)
	default: // "fleet"
		return true
	}
}

// Unicast delivers frame to exactly the named sessions within a fleet's
// topic, used by memory-subscription fan-out where interest is keyed by
// session id rather than by scope. Unknown session ids are silently
// skipped: the subscription and the live connection can fall out of sync
// for one tick around disconnect.
func (b *Bus) Unicast(tenantID, fleetID string, sessionIDs []string, frame []byte) {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range sessionIDs {
		sub, ok := t.subscribers[id]
		if !ok {
			continue
		}
		select {
		case sub.Outbox <- frame:
		default:
			logger.Fleet().Warn().Str("session", sub.SessionID).Msg("dropping unicast frame for slow subscriber")
		}
	}
}

// Roster returns the agent ids currently subscribed to a fleet's topic, a
// snapshot taken under the topic's read lock.
func (b *Bus) Roster(tenantID, fleetID string) []string {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	agents := make([]string, 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		agents = append(agents, sub.AgentID)
	}
	return agents
}

// SessionsOf returns the live subscriber handles for a given agent within a
// fleet (an agent may have more than one concurrent session during a
// reconnect race).
func (b *Bus) SessionsOf(tenantID, fleetID, agentID string) []*Subscriber {
	t := b.topicFor(tenantID, fleetID, false)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Subscriber
	for _, sub := range t.subscribers {
		if sub.AgentID == agentID {
			out = append(out, sub)
		}
	}
	return out
}
