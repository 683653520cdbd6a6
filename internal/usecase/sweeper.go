package usecase

import (
	"context"
	"log/slog"
	"time"

	"VoiceScribe/internal/ports"
)

// Sweeper drives the periodic stale-PENDING cleanup through a scheduler.
type Sweeper struct {
	pipeline  *Pipeline
	scheduler ports.Scheduler
	logger    *slog.Logger
}

// NewSweeper wires the pipeline's sweep into a scheduler.
func NewSweeper(pipeline *Pipeline, scheduler ports.Scheduler, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		pipeline:  pipeline,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx, func(t time.Time) {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Debug("running stale pending sweep", "tick", t)
		s.pipeline.SweepStale(sweepCtx)
	})
}

// Stop halts the scheduler and waits for an in-flight sweep.
func (s *Sweeper) Stop(ctx context.Context) error {
	return s.scheduler.Stop(ctx)
}
