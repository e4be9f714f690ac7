package syncer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Schedule registers SyncAll on c with the given cron spec. Runs that would
// overlap a still-running cycle are skipped.
func (s *Syncer) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		if err := s.SyncAll(ctx); err != nil {
			s.logger.Error("Scheduled sync failed", "error", err)
		}
	}))
	id, err := c.AddJob(spec, job)
	if err != nil {
		return 0, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	s.logger.Info("Scheduled periodic Google Calendar sync.", "schedule", spec)
	return id, nil
}
