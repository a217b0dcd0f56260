package ingest

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs periodic incremental syncs on a cron expression.
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	spec   string
	logger zerolog.Logger
}

// NewScheduler validates spec (standard five-field cron) and prepares the
// schedule. Nothing runs until Start.
func NewScheduler(spec string, syncer *Syncer, logger zerolog.Logger) (*Scheduler, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		cron:   cron.New(),
		syncer: syncer,
		spec:   spec,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}

	return s, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Msg("Sync scheduler started")
}

// Stop halts the schedule, waiting for a running sync to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Sync scheduler stopped")
}

func (s *Scheduler) runOnce() {
	// A failed scheduled sync is logged, not fatal: the next tick retries.
	if _, err := s.syncer.Sync(context.Background(), false); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sync failed")
	}
}
