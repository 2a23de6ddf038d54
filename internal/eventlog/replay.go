package eventlog

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamspace-dev/ringforge/internal/ports"
)

// DefaultReplayRate bounds replay delivery to 100 items/s by default.
const DefaultReplayRate = 100

// Request mirrors the wire replay.request payload.
type Request struct {
	From  time.Time
	To    time.Time
	Kinds []string
	Tags  []string
	Agents []string
	Limit int
}

// Item is one delivered replay.item, tagged with its position in the
// stream (distinct from the log's own monotonic position, which is also
// carried for client-side dedup).
type Item struct {
	Index  int
	Record *ports.EventRecord
}

// Replay opens a one-shot cursor over fleetID's log starting at the
// smallest position with timestamp >= req.From, and delivers at most
// req.Limit matching records to onItem at no more than ratePerSec items/s.
// It returns the number of records delivered. The caller sends replay.end
// with that count once Replay returns. req.Tags is not applied: records
// are not filtered by tag.
func (l *Log) Replay(ctx context.Context, fleetID string, req Request, ratePerSec int, onItem func(Item) error) (int, error) {
	if ratePerSec <= 0 {
		ratePerSec = DefaultReplayRate
	}
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), 1)

	filter := ports.ScanFilter{
		Kinds:  req.Kinds,
		Tags:   req.Tags,
		Agents: req.Agents,
	}
	stream, err := l.store.Scan(ctx, fleetID, filter)
	if err != nil {
		return 0, err
	}

	delivered := 0
	idx := 0
	for rec := range stream {
		if !req.From.IsZero() && rec.Timestamp.Before(req.From) {
			continue
		}
		if !req.To.IsZero() && rec.Timestamp.After(req.To) {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		if err := onItem(Item{Index: idx, Record: rec}); err != nil {
			return delivered, err
		}
		idx++
		delivered++
		if req.Limit > 0 && delivered >= req.Limit {
			break
		}
	}
	return delivered, nil
}
