package scheduler

import (
	"context"
	"time"

	"VoiceScribe/internal/ports"
)

// TickerScheduler runs a job on a fixed interval until stopped.
type TickerScheduler struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the given tick interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	return &TickerScheduler{interval: interval}
}

// Start launches the periodic job. The job also runs once immediately.
func (s *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		job(time.Now())
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				job(t)
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for the running job to return.
func (s *TickerScheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
