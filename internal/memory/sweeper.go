package memory

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires TTL'd entries across all fleets.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules svc.SweepExpired at the given cadence in seconds
// (>= 15s, same cadence class as the presence sweeper).
func NewSweeper(svc *Service, intervalSeconds int) (*Sweeper, error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), svc.SweepExpired); err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { s.cron.Stop() }
