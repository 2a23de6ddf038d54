// Package directmsg implements point-to-point envelope delivery (C5): live
// delivery via the fleet bus's direct scope when the recipient is online,
// and a bounded per-recipient offline queue with a TTL window otherwise.
package directmsg

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery states.
const (
	StateDelivered = "delivered"
	StateQueued    = "queued"
	StateDropped   = "dropped"
)

// QueueLimit and QueueTTL bound the offline queue.
const (
	QueueLimit = 100
	QueueTTL   = 5 * time.Minute
)

// Message is one point-to-point payload.
type Message struct {
	ID          string
	From        string
	To          string
	Correlation string
	Payload     []byte
	EnqueuedAt  time.Time
}

type recipientKey struct {
	fleetID string
	agentID string
}

// Queues holds every recipient's bounded offline deque.
type Queues struct {
	mu     sync.Mutex
	queues map[recipientKey][]*Message
}

func NewQueues() *Queues {
	return &Queues{queues: make(map[recipientKey][]*Message)}
}

// Enqueue appends a message to a recipient's offline queue. If the queue is
// already at QueueLimit, the new message is dropped rather than stored,
// and ok is false so the caller can notify the sender.
func (q *Queues) Enqueue(fleetID, to, from, correlation string, payload []byte) (msg *Message, ok bool) {
	msg = &Message{
		ID:          uuid.NewString(),
		From:        from,
		To:          to,
		Correlation: correlation,
		Payload:     payload,
		EnqueuedAt:  time.Now(),
	}
	k := recipientKey{fleetID, to}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queues[k]) >= QueueLimit {
		return msg, false
	}
	q.queues[k] = append(q.queues[k], msg)
	return msg, true
}

// Drain removes and returns every queued message for a recipient, in
// enqueue (FIFO) order, for delivery on the recipient's next successful
// auth before resuming live delivery.
func (q *Queues) Drain(fleetID, agentID string) []*Message {
	k := recipientKey{fleetID, agentID}
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.queues[k]
	delete(q.queues, k)
	return msgs
}

// SweepExpired removes messages older than QueueTTL across all queues and
// returns them, so the caller can emit exactly one dropped notification per
// message to its sender (if the sender is still online).
func (q *Queues) SweepExpired() []*Message {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []*Message
	for k, msgs := range q.queues {
		kept := msgs[:0:0]
		for _, m := range msgs {
			if now.Sub(m.EnqueuedAt) >= QueueTTL {
				expired = append(expired, m)
			} else {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(q.queues, k)
		} else {
			q.queues[k] = kept
		}
	}
	return expired
}
