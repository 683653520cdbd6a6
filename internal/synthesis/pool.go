package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/ports"
	apperrors "VoiceScribe/pkg/errors"
	"VoiceScribe/pkg/metrics"
	"VoiceScribe/pkg/resilience"
)

// Pool fans chunk synthesis out over a bounded number of workers. Completion
// order across workers is unconstrained; each worker writes its segment into
// the slot matching its chunk index, so the returned slice is always in
// sequence order regardless of scheduling.
type Pool struct {
	synth   ports.Synthesizer
	size    int
	retry   resilience.RetryConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPool wires a synthesizer into a worker pool sized per configuration.
func NewPool(synth ports.Synthesizer, cfg config.SynthesisConfig, logger *slog.Logger, m *metrics.Metrics) *Pool {
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		synth: synth,
		size:  size,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     cfg.RetryMaxDelay,
		},
		logger:  logger,
		metrics: m,
	}
}

// Run synthesizes every chunk or fails the whole job: if any chunk exhausts
// its retries the first error is returned and no partial result escapes. A
// retryable failure is retried with exponential backoff and jitter; a
// permanent one fails the chunk immediately.
func (p *Pool) Run(ctx context.Context, chunks []domain.TextChunk) ([]domain.AudioSegment, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to synthesize", apperrors.ErrEmptyContent)
	}

	segments := make([]domain.AudioSegment, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	for _, chunk := range chunks {
		g.Go(func() error {
			var data []byte
			err := resilience.Retry(gctx, fmt.Sprintf("synthesize chunk %d", chunk.Index), p.retry, func() error {
				var synthErr error
				data, synthErr = p.synth.Synthesize(gctx, chunk.Text)
				p.countAttempt(synthErr)
				return synthErr
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}

			duration := segmentDuration(data)
			segments[chunk.Index] = domain.AudioSegment{
				Index:    chunk.Index,
				Data:     data,
				Duration: duration,
			}
			p.logger.Debug("chunk synthesized",
				"index", chunk.Index, "bytes", len(data), "duration", duration)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segments, nil
}

func (p *Pool) countAttempt(err error) {
	if p.metrics == nil {
		return
	}
	switch {
	case err == nil:
		p.metrics.ChunkAttemptsTotal.WithLabelValues("ok").Inc()
	case apperrors.IsRetryable(err):
		p.metrics.ChunkAttemptsTotal.WithLabelValues("retryable_error").Inc()
	default:
		p.metrics.ChunkAttemptsTotal.WithLabelValues("permanent_error").Inc()
	}
}

func segmentDuration(data []byte) (d time.Duration) {
	if f, pcm, err := DecodeWAV(data); err == nil {
		d = PCMDuration(f, len(pcm))
	}
	return d
}
