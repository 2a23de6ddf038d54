// Package idempotency caches the response to a mutating operation keyed by
// (agent, client-supplied ref) for a short window, so a retried envelope
// after a dropped ack replays the original result instead of re-applying
// the mutation. Built as a look-up-then-store over plain Redis GET and SET,
// with no lock or SETNX claim: two concurrent envelopes with the same ref
// can both miss the lookup and both apply.
package idempotency

import (
	"context"
	"time"

	"github.com/streamspace-dev/ringforge/internal/cache"
)

// DefaultTTL is how long a cached response survives by default.
const DefaultTTL = 5 * time.Minute

// Store records one mutating operation's outcome per (agent, ref).
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewStore(c *cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: c, ttl: ttl}
}

// cached is what's actually stored: the response payload plus whether the
// original call ultimately errored, so a replay reproduces the same
// outcome rather than silently downgrading an error into a success.
type cached struct {
	Response interface{} `json:"response"`
	IsError  bool        `json:"is_error"`
}

// Claim looks up whether (agentID, ref) already has a cached outcome.
// found is true if a prior call completed for this ref (the caller should
// replay response/isError verbatim instead of re-applying the mutation).
func (s *Store) Claim(ctx context.Context, agentID, ref string) (response interface{}, isError bool, found bool) {
	if !s.cache.IsEnabled() || ref == "" {
		return nil, false, false
	}
	key := cache.IdempotencyKey(agentID, ref)
	var c cached
	if err := s.cache.Get(ctx, key, &c); err != nil {
		return nil, false, false
	}
	return c.Response, c.IsError, true
}

// Store records the outcome of a mutating operation for later replay.
// Called once the operation completes, regardless of outcome, so a second
// submission of the same ref short-circuits via Claim.
func (s *Store) Store(ctx context.Context, agentID, ref string, response interface{}, isError bool) error {
	if !s.cache.IsEnabled() || ref == "" {
		return nil
	}
	key := cache.IdempotencyKey(agentID, ref)
	return s.cache.Set(ctx, key, cached{Response: response, IsError: isError}, s.ttl)
}
