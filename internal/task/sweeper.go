package task

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically reassigns tasks whose claim grace elapsed without
// an acknowledgement, using the same cron-based cadence as the presence
// and memory sweepers.
type Sweeper struct {
	cron *cron.Cron
}

// CandidateSource supplies a fresh online-candidate snapshot for a fleet at
// sweep time; cmd/ringforge backs it with the presence roster plus the
// router's LoadSnapshot.
type CandidateSource func(fleetID string) []Candidate

// NewSweeper schedules a claim-timeout check across every fleet the router
// knows about, at the given cadence in seconds.
func NewSweeper(r *Router, fleetIDs func() []string, candidatesFor CandidateSource, stats Stats, intervalSeconds int) (*Sweeper, error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), func() {
		for _, fleetID := range fleetIDs() {
			r.CheckClaimTimeouts(candidatesFor(fleetID), stats)
		}
	}); err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { s.cron.Stop() }
