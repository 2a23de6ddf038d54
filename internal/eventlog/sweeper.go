package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/streamspace-dev/ringforge/internal/logger"
	"github.com/streamspace-dev/ringforge/internal/ports"
)

// Sweeper periodically enforces each tenant plan's retention window (spec
// §4.6: 24h free, 7d pro, 30d scale, >=90d enterprise) across every fleet,
// using the same cron-based cadence as the presence and memory sweepers.
type Sweeper struct {
	cron *cron.Cron
}

// RetentionForPlan resolves a tenant plan to its event-log retention
// window. Supplied by the caller (internal/config.RetentionForPlan in
// production) so this package stays free of plan/pricing knowledge.
type RetentionForPlan func(plan string) time.Duration

// NewSweeper schedules a retention pass over every fleet at the given
// cadence in seconds. store resolves each fleet's tenant to read its plan.
func NewSweeper(l *Log, store ports.MetadataStore, retentionForPlan RetentionForPlan, intervalSeconds int) (*Sweeper, error) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), func() {
		sweepRetention(l, store, retentionForPlan)
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

func sweepRetention(l *Log, store ports.MetadataStore, retentionForPlan RetentionForPlan) {
	ctx := context.Background()
	fleets, err := store.ListAllFleets(ctx)
	if err != nil {
		logger.EventLog().Warn().Err(err).Msg("retention sweep: failed to list fleets")
		return
	}
	tenantPlan := make(map[string]string)
	for _, f := range fleets {
		plan, ok := tenantPlan[f.TenantID]
		if !ok {
			t, err := store.GetTenant(ctx, f.TenantID)
			if err != nil {
				logger.EventLog().Warn().Err(err).Str("tenant", f.TenantID).Msg("retention sweep: failed to resolve tenant plan")
				continue
			}
			plan = t.Plan
			tenantPlan[f.TenantID] = plan
		}
		window := retentionForPlan(plan)
		cutoff := time.Now().Add(-window)
		deleted, err := l.EnforceRetention(ctx, f.ID, cutoff)
		if err != nil {
			logger.EventLog().Warn().Err(err).Str("fleet", f.ID).Msg("retention sweep failed")
			continue
		}
		if deleted > 0 {
			logger.EventLog().Info().Str("fleet", f.ID).Int64("deleted", deleted).Msg("retention sweep removed expired events")
		}
	}
}

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { s.cron.Stop() }
