package ports

import (
	"context"
	"io"
	"time"

	"VoiceScribe/internal/domain"
)

// ArticleRepository persists article records. UpdateAudioStatus and
// TryTransition must be atomic: TryTransition is the compare-and-set that
// enforces the one-synthesis-job-per-article guarantee.
type ArticleRepository interface {
	Save(ctx context.Context, article domain.Article) (string, error)
	Get(ctx context.Context, id string) (domain.Article, error)
	List(ctx context.Context) ([]domain.Article, error)
	Update(ctx context.Context, id string, upd domain.ArticleUpdate) error
	Delete(ctx context.Context, id string) error
	UpdateAudioStatus(ctx context.Context, id string, status domain.AudioStatus, audioRef string) error
	TryTransition(ctx context.Context, id string, from []domain.AudioStatus, to domain.AudioStatus) (bool, error)
	FailStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// AudioStore persists assembled audio and serves it for byte-range reads.
type AudioStore interface {
	Put(ctx context.Context, id string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadSeekCloser, time.Time, error)
	Delete(ctx context.Context, ref string) error
}

// Synthesizer converts one text chunk into encoded audio bytes. It is a
// rate-limited remote call; errors carry a retryable classification.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ContentCleaner optionally rewrites extracted text before persistence.
type ContentCleaner interface {
	Clean(ctx context.Context, text string) (string, error)
}

// Notifier announces completed audio to an outbound channel.
type Notifier interface {
	AudioReady(ctx context.Context, article domain.Article) error
}

// EventPublisher emits article lifecycle events for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// ArticleCache caches the article listing between repository writes.
type ArticleCache interface {
	Get(ctx context.Context) ([]domain.Article, bool)
	Set(ctx context.Context, articles []domain.Article)
	Invalidate(ctx context.Context)
}

// Scheduler drives recurring maintenance work.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
