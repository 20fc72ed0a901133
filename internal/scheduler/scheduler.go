// Package scheduler runs incremental ingestion for every configured location
// on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/climate-daily-etl/internal/pipeline"
)

// Scheduler periodically runs an ingestion function for each location.
type Scheduler struct {
	scheduler *gocron.Scheduler
	run       pipeline.RunFunc
	locations []string
	interval  time.Duration
	limit     int
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. limit bounds how many locations run at once
// (0 means all of them).
func New(locations []string, interval time.Duration, limit int, run pipeline.RunFunc, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		run:       run,
		locations: locations,
		interval:  interval,
		limit:     limit,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the job and starts the underlying scheduler. The first run
// happens immediately. A run still in progress when the next tick fires is
// not overlapped.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Warn("no locations configured; nothing to schedule")
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid update interval %s", s.interval)
	}

	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.tick); err != nil {
		return fmt.Errorf("schedule update job: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval, "locations", len(s.locations))
	return nil
}

// Stop cancels any run in progress and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) tick() {
	start := time.Now()
	summaries, err := pipeline.EachLocation(s.ctx, s.locations, s.limit, s.run)
	if err != nil {
		s.logger.Error("scheduled update failed", "error", err)
	}
	var stored, failed int
	for _, sum := range summaries {
		stored += sum.Stored
		failed += len(sum.Failed)
		if sum.NeedsBulk {
			s.logger.Warn("location has no stored observations; run a bulk download", "location", sum.Location)
		}
	}
	s.logger.Info("scheduled update finished",
		"stored", stored,
		"failed_targets", failed,
		"duration", time.Since(start),
	)
}
