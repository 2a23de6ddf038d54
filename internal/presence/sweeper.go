package presence

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/streamspace-dev/ringforge/internal/logger"
)

// Sweeper periodically sweeps the presence index for stale entries on a
// cron-based schedule.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules idx's Sweep at the given interval (minimum 15s) and
// invokes onStale for every entry the sweep removes.
func NewSweeper(idx *Index, interval SweepSeconds, onStale func(fleetID, agentID string)) (*Sweeper, error) {
	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", int(interval))
	if _, err := c.AddFunc(spec, func() {
		idx.Sweep(func(fleetID, agentID string) {
			logger.Presence().Info().Str("fleet", fleetID).Str("agent", agentID).Msg("presence entry expired")
			onStale(fleetID, agentID)
		})
	}); err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

// SweepSeconds is the sweep cadence in seconds; must be >= 15.
type SweepSeconds int

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { s.cron.Stop() }
