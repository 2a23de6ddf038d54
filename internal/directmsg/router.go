package directmsg

import (
	"github.com/streamspace-dev/ringforge/internal/fleet"
)

// Router wires the offline queue to the fleet bus's direct-scope delivery
// to implement send(to, payload, correlation?).
type Router struct {
	bus    *fleet.Bus
	queues *Queues
}

func NewRouter(bus *fleet.Bus, queues *Queues) *Router {
	return &Router{bus: bus, queues: queues}
}

// Send resolves the recipient's live session in the same fleet. If
// present, it returns StateDelivered (the caller publishes the frame via
// the bus's direct scope and acks the sender separately); if absent, it
// enqueues for offline delivery and returns StateQueued, or StateDropped if
// the recipient's queue is already full.
func (r *Router) Send(tenantID, fleetID, from, to, correlation string, payload []byte) (state string, queuedMsg *Message) {
	if sessions := r.bus.SessionsOf(tenantID, fleetID, to); len(sessions) > 0 {
		return StateDelivered, nil
	}
	msg, ok := r.queues.Enqueue(fleetID, to, from, correlation, payload)
	if !ok {
		return StateDropped, msg
	}
	return StateQueued, msg
}

// Drain returns the recipient's queued messages in FIFO order for delivery
// immediately after a successful reconnect auth.
func (r *Router) Drain(fleetID, agentID string) []*Message {
	return r.queues.Drain(fleetID, agentID)
}
