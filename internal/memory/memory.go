// Package memory implements the shared memory service (C4): a per-fleet
// keyed key-value store with tags, queries, TTL expiry, and key-pattern
// subscriptions.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/streamspace-dev/ringforge/internal/errors"
)

// Limits enforced at the boundary.
const (
	MaxKeyBytes   = 500
	MaxValueBytes = 1 << 20 // 1 MiB
)

// Value kinds.
const (
	TypeText             = "text"
	TypeJSON             = "json"
	TypeEmbeddingRef      = "embedding-reference"
	TypeBlobRef           = "blob-reference"
)

// ChangeKind distinguishes set from delete notifications.
const (
	ChangeSet    = "set"
	ChangeDelete = "delete"
)

// Entry is one fleet-scoped record.
type Entry struct {
	Key         string
	Value       string
	ValueType   string
	Tags        []string
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
	TTL         *time.Duration
	AccessCount int64
	Metadata    map[string]interface{}
}

func (e *Entry) expiresAt() time.Time {
	if e.TTL == nil {
		return time.Time{}
	}
	return e.CreatedAt.Add(*e.TTL)
}

// Change is the notification payload delivered to subscribers of set/delete.
type Change struct {
	Fleet  string
	Key    string
	Kind   string
	Reason string // "expired" on TTL-driven deletes, empty otherwise
	Entry  *Entry // the expired entry on TTL-driven deletes
}

type fleetStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Service is the process-wide shared memory service, one logical store per
// fleet.
type Service struct {
	mu     sync.RWMutex
	fleets map[string]*fleetStore

	notify func(fleetID string, c Change)
}

// NewService creates a memory service. notify is invoked synchronously by
// SweepExpired for each expired entry; Set and Delete never call it (the
// gateway appends to the event log and fans out those changes itself).
func NewService(notify func(fleetID string, c Change)) *Service {
	return &Service{fleets: make(map[string]*fleetStore), notify: notify}
}

func (s *Service) storeFor(fleetID string) *fleetStore {
	s.mu.RLock()
	fs, ok := s.fleets[fleetID]
	s.mu.RUnlock()
	if ok {
		return fs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.fleets[fleetID]; ok {
		return fs
	}
	fs = &fleetStore{entries: make(map[string]*Entry)}
	s.fleets[fleetID] = fs
	return fs
}

// ValidateKey enforces the printable-ASCII, <=500-byte key shape.
func ValidateKey(key string) *errors.AppError {
	if key == "" || len(key) > MaxKeyBytes {
		return errors.InvalidMessage("memory key must be 1-500 bytes")
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return errors.InvalidMessage("memory key must be printable ASCII")
		}
	}
	return nil
}

// Set upserts key within fleetID. Mutations on a single key are serialized
// by the fleet-wide lock; on an existing key the version becomes prev+1 and
// updated_at advances. Concurrent writers resolve last-writer-wins under
// the lock; the returned version distinguishes the winner for observers.
func (s *Service) Set(fleetID, key, value, valueType, author string, tags []string, ttl *time.Duration, metadata map[string]interface{}) (*Entry, *errors.AppError) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if len(value) > MaxValueBytes {
		return nil, errors.PayloadTooLarge("memory value exceeds 1 MiB")
	}
	if valueType == "" {
		valueType = TypeText
	}

	fs := s.storeFor(fleetID)
	fs.mu.Lock()
	now := time.Now()
	existing, had := fs.entries[key]
	var e *Entry
	if had {
		e = &Entry{
			Key:         key,
			Value:       value,
			ValueType:   valueType,
			Tags:        tags,
			Author:      author,
			CreatedAt:   existing.CreatedAt,
			UpdatedAt:   now,
			Version:     existing.Version + 1,
			TTL:         ttl,
			AccessCount: existing.AccessCount,
			Metadata:    metadata,
		}
	} else {
		e = &Entry{
			Key:       key,
			Value:     value,
			ValueType: valueType,
			Tags:      tags,
			Author:    author,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
			TTL:       ttl,
			Metadata:  metadata,
		}
	}
	fs.entries[key] = e
	fs.mu.Unlock()

	// No notify here: the caller must append this write to the durable
	// event log first (fail-closed ordering) and only then
	// publish — a connection-bound Set always has a caller positioned to
	// do that; see gateway.PublishMemoryChange.
	return e, nil
}

// Peek returns a copy of an entry without incrementing its access count,
// used by quota accounting to size a write before it lands rather than by
// clients reading the value.
func (s *Service) Peek(fleetID, key string) (*Entry, bool) {
	fs := s.storeFor(fleetID)
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	e, ok := fs.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Get returns an entry and increments its access count, or not_found.
func (s *Service) Get(fleetID, key string) (*Entry, *errors.AppError) {
	fs := s.storeFor(fleetID)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[key]
	if !ok {
		return nil, errors.NotFound("memory key")
	}
	e.AccessCount++
	cp := *e
	return &cp, nil
}

// Delete removes key without notifying subscribers. reason is not used;
// the TTL sweeper removes expired entries itself rather than through here.
func (s *Service) Delete(fleetID, key, reason string) *errors.AppError {
	fs := s.storeFor(fleetID)
	fs.mu.Lock()
	_, ok := fs.entries[key]
	if ok {
		delete(fs.entries, key)
	}
	fs.mu.Unlock()
	if !ok {
		return errors.NotFound("memory key")
	}
	// No notify here either, for an explicit client delete (reason ""):
	// same fail-closed ordering as Set. SweepExpired below is the one
	// caller with no connection to hang a post-log-append notify off of,
	// so it notifies directly.
	return nil
}

// Query is the filter/sort/paginate request shape for Service.Query.
type Query struct {
	Tags   []string
	Text   string
	Author string
	Since  time.Time
	Sort   string // created_at | updated_at | access_count | relevance
	Limit  int
	Offset int
}

// relevance combines a tag-intersection count with a case-insensitive
// substring match score over the value, giving a deterministic, documented
// (if arbitrary) ranking.
func relevance(e *Entry, q Query) float64 {
	score := 0.0
	tagSet := make(map[string]bool, len(q.Tags))
	for _, t := range q.Tags {
		tagSet[t] = true
	}
	for _, t := range e.Tags {
		if tagSet[t] {
			score += 1.0
		}
	}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		haystack := strings.ToLower(e.Value)
		if strings.Contains(haystack, needle) {
			score += 0.5
		}
	}
	return score
}

func matchesQuery(e *Entry, q Query) bool {
	if len(q.Tags) > 0 {
		found := false
		tagSet := make(map[string]bool, len(e.Tags))
		for _, t := range e.Tags {
			tagSet[t] = true
		}
		for _, t := range q.Tags {
			if tagSet[t] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Author != "" && e.Author != q.Author {
		return false
	}
	if !q.Since.IsZero() && e.UpdatedAt.Before(q.Since) {
		return false
	}
	if q.Text != "" && !strings.Contains(strings.ToLower(e.Value), strings.ToLower(q.Text)) {
		return false
	}
	return true
}

// Query ranks and paginates entries in a fleet. Pagination is stable
// across identical queries because ties are broken by key, a total order.
func (s *Service) Query(fleetID string, q Query) ([]*Entry, int) {
	fs := s.storeFor(fleetID)
	fs.mu.RLock()
	matched := make([]*Entry, 0, len(fs.entries))
	for _, e := range fs.entries {
		if matchesQuery(e, q) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	fs.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch q.Sort {
		case "created_at":
			less = a.CreatedAt.Before(b.CreatedAt)
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.Key < b.Key
			}
		case "access_count":
			if a.AccessCount != b.AccessCount {
				return a.AccessCount > b.AccessCount
			}
			return a.Key < b.Key
		case "relevance":
			ra, rb := relevance(a, q), relevance(b, q)
			if ra != rb {
				return ra > rb
			}
			return a.Key < b.Key
		default: // updated_at
			less = a.UpdatedAt.Before(b.UpdatedAt)
			if a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.Key < b.Key
			}
		}
		return less
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total
}

// SweepExpired deletes every entry in every fleet whose TTL has elapsed,
// emitting changed(delete, reason=expired) for each.
func (s *Service) SweepExpired() {
	s.mu.RLock()
	fleetIDs := make([]string, 0, len(s.fleets))
	for id := range s.fleets {
		fleetIDs = append(fleetIDs, id)
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, fleetID := range fleetIDs {
		fs := s.storeFor(fleetID)
		fs.mu.Lock()
		expired := make(map[string]*Entry)
		for k, e := range fs.entries {
			if e.TTL != nil && now.After(e.expiresAt()) {
				cp := *e
				expired[k] = &cp
			}
		}
		for k := range expired {
			delete(fs.entries, k)
		}
		fs.mu.Unlock()

		for k, e := range expired {
			if s.notify != nil {
				s.notify(fleetID, Change{Fleet: fleetID, Key: k, Kind: ChangeDelete, Reason: "expired", Entry: e})
			}
		}
	}
}
