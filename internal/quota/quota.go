// Package quota implements the tenant quota gates (X2): soft warnings at
// 80% of a plan's limit, hard rejection at 100%, tracked as five counters
// (concurrent-agents, messages-today, memory-entries, fleets,
// storage-bytes).
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/streamspace-dev/ringforge/internal/cache"
	"github.com/streamspace-dev/ringforge/internal/config"
	"github.com/streamspace-dev/ringforge/internal/errors"
)

// Counter names.
const (
	CounterConcurrentAgents = "concurrent_agents"
	CounterMessagesToday    = "messages_today"
	CounterMemoryEntries    = "memory_entries"
	CounterFleets           = "fleets"
	CounterStorageBytes     = "storage_bytes"
)

// SoftThreshold is the fraction of a limit at which a quota_warning fires.
const SoftThreshold = 0.8

// Gate enforces quota limits in front of handler dispatch.
type Gate struct {
	cache *cache.Cache
}

func NewGate(c *cache.Cache) *Gate {
	return &Gate{cache: c}
}

func limitFor(plan, counter string) int64 {
	limits := config.QuotaTableForPlan(plan)
	switch counter {
	case CounterConcurrentAgents:
		return limits.MaxConcurrentAgents
	case CounterMessagesToday:
		return limits.MaxMessagesPerDay
	case CounterMemoryEntries:
		return limits.MaxMemoryEntries
	case CounterFleets:
		return limits.MaxFleets
	case CounterStorageBytes:
		return limits.MaxStorageBytes
	default:
		return 0
	}
}

func counterKey(tenantID, counter string) string {
	if counter == CounterMessagesToday {
		return cache.QuotaCounterKey(tenantID, counter+":"+dayBucket())
	}
	return cache.QuotaCounterKey(tenantID, counter)
}

// dayBucket resets messages-today at midnight UTC by keying the counter
// to the current UTC date.
func dayBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

// Result describes the outcome of a quota check.
type Result struct {
	Warn    bool
	Current int64
	Limit   int64
}

// CheckAndIncrement atomically increments a tenant's counter by delta and
// evaluates it against the plan's limit. A breach of 100% rolls the
// increment back and returns quota_exceeded; crossing 80% (without
// breaching) returns Warn=true so the caller can emit
// system.quota_warning to the responsible session.
func (g *Gate) CheckAndIncrement(ctx context.Context, tenantID, plan, counter string, delta int64) (Result, *errors.AppError) {
	limit := limitFor(plan, counter)
	key := counterKey(tenantID, counter)

	if !g.cache.IsEnabled() {
		// No cache backend: quotas are advisory-only, never block.
		return Result{Limit: limit}, nil
	}

	current, err := g.cache.IncrementBy(ctx, key, delta)
	if err != nil {
		return Result{}, errors.Unavailable("quota counter")
	}
	if counter == CounterMessagesToday {
		_ = g.cache.Expire(ctx, key, 25*time.Hour)
	}

	if limit > 0 && current > limit {
		_, _ = g.cache.IncrementBy(ctx, key, -delta)
		return Result{Current: current - delta, Limit: limit}, errors.QuotaExceeded(
			fmt.Sprintf("%s quota exceeded (%d/%d)", counter, current-delta, limit))
	}

	warn := limit > 0 && float64(current) >= float64(limit)*SoftThreshold
	return Result{Warn: warn, Current: current, Limit: limit}, nil
}

// Decrement lowers a gauge counter (concurrent-agents, memory-entries,
// fleets, storage-bytes) on disconnect/deletion; messages-today is never
// decremented.
func (g *Gate) Decrement(ctx context.Context, tenantID, counter string, delta int64) error {
	if !g.cache.IsEnabled() {
		return nil
	}
	key := counterKey(tenantID, counter)
	_, err := g.cache.IncrementBy(ctx, key, -delta)
	return err
}

// Usage reports the current value of a counter without mutating it.
func (g *Gate) Usage(ctx context.Context, tenantID, counter string) (int64, error) {
	if !g.cache.IsEnabled() {
		return 0, nil
	}
	var val int64
	key := counterKey(tenantID, counter)
	if err := g.cache.Get(ctx, key, &val); err != nil {
		return 0, nil // absent counter reads as zero
	}
	return val, nil
}
