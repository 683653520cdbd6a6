package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/extract"
	"VoiceScribe/internal/fetcher"
	"VoiceScribe/internal/ports"
	"VoiceScribe/internal/synthesis"
	apperrors "VoiceScribe/pkg/errors"
	"VoiceScribe/pkg/metrics"
)

// Pipeline orchestrates the article-to-audio flow: ingest, on-demand
// synthesis, and article lifecycle operations. Cleaner, notifier, publisher,
// cache and metrics are optional; a nil value disables the concern.
type Pipeline struct {
	repo      ports.ArticleRepository
	store     ports.AudioStore
	fetcher   *fetcher.Fetcher
	extractor *extract.Extractor
	chunker   *synthesis.Chunker
	pool      *synthesis.Pool
	assembler *synthesis.Assembler
	cleaner   ports.ContentCleaner
	notifier  ports.Notifier
	publisher ports.EventPublisher
	cache     ports.ArticleCache
	metrics   *metrics.Metrics
	logger    *slog.Logger

	pendingDeadline time.Duration

	// jobCtx outlives the HTTP request that started a job; jobs are
	// cancelled individually through the jobs map or all at once via Close.
	jobCtx    context.Context
	jobCancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// Deps carries everything the pipeline needs.
type Deps struct {
	Repo      ports.ArticleRepository
	Store     ports.AudioStore
	Fetcher   *fetcher.Fetcher
	Extractor *extract.Extractor
	Chunker   *synthesis.Chunker
	Pool      *synthesis.Pool
	Assembler *synthesis.Assembler
	Cleaner   ports.ContentCleaner
	Notifier  ports.Notifier
	Publisher ports.EventPublisher
	Cache     ports.ArticleCache
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	PendingDeadline time.Duration
}

// New builds the pipeline.
func New(d Deps) *Pipeline {
	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &Pipeline{
		repo:            d.Repo,
		store:           d.Store,
		fetcher:         d.Fetcher,
		extractor:       d.Extractor,
		chunker:         d.Chunker,
		pool:            d.Pool,
		assembler:       d.Assembler,
		cleaner:         d.Cleaner,
		notifier:        d.Notifier,
		publisher:       d.Publisher,
		cache:           d.Cache,
		metrics:         d.Metrics,
		logger:          d.Logger,
		pendingDeadline: d.PendingDeadline,
		jobCtx:          jobCtx,
		jobCancel:       jobCancel,
		jobs:            make(map[string]context.CancelFunc),
	}
}

// Close cancels every in-flight synthesis job and waits for them to finish.
func (p *Pipeline) Close() {
	p.jobCancel()
	p.wg.Wait()
}

// IngestRequest submits an article by URL or as raw HTML. Exactly one of the
// two fields must be set.
type IngestRequest struct {
	URL  string
	HTML string
}

// Ingest fetches (if needed), extracts and persists a new article.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (domain.Article, error) {
	hasURL := strings.TrimSpace(req.URL) != ""
	hasHTML := strings.TrimSpace(req.HTML) != ""
	if hasURL == hasHTML {
		p.countIngestFailure("invalid_input")
		return domain.Article{}, fmt.Errorf("%w: provide exactly one of url or html", apperrors.ErrInvalidInput)
	}

	html := req.HTML
	sourceType := domain.SourceHTML
	sourceURL := ""
	if hasURL {
		sourceType = domain.SourceURL
		sourceURL = strings.TrimSpace(req.URL)
		fetched, err := p.fetcher.Fetch(ctx, sourceURL)
		if err != nil {
			p.countIngestFailure("fetch")
			return domain.Article{}, fmt.Errorf("fetch article: %w", err)
		}
		html = fetched
	}

	extracted, err := p.extractor.Extract(html)
	if err != nil {
		p.countIngestFailure("extraction")
		return domain.Article{}, fmt.Errorf("extract article: %w", err)
	}

	content := extracted.Content
	if p.cleaner != nil {
		cleaned, err := p.cleaner.Clean(ctx, content)
		if err != nil {
			p.logger.Warn("content cleanup failed, keeping extracted text", "error", err)
		} else {
			content = cleaned
		}
	}

	article := domain.Article{
		Title:       extracted.Title,
		Author:      extracted.Author,
		Description: extracted.Description,
		Content:     content,
		URL:         sourceURL,
		SourceType:  sourceType,
		PublishedAt: extracted.PublishedAt,
		AudioStatus: domain.AudioNone,
	}

	id, err := p.repo.Save(ctx, article)
	if err != nil {
		p.countIngestFailure("repository")
		return domain.Article{}, fmt.Errorf("save article: %w", err)
	}
	article.ID = id

	p.invalidateCache(ctx)
	p.publish(ctx, domain.EventArticleIngested, id, sourceURL)
	if p.metrics != nil {
		p.metrics.ArticlesIngestedTotal.Inc()
	}
	p.logger.Info("article ingested",
		"id", id, "source", sourceType, "title", article.Title, "bytes", len(content))

	return p.repo.Get(ctx, id)
}

// Article returns one stored article.
func (p *Pipeline) Article(ctx context.Context, id string) (domain.Article, error) {
	return p.repo.Get(ctx, id)
}

// Articles lists stored articles, serving from cache when possible.
func (p *Pipeline) Articles(ctx context.Context) ([]domain.Article, error) {
	if p.cache != nil {
		if articles, ok := p.cache.Get(ctx); ok {
			return articles, nil
		}
	}
	articles, err := p.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(ctx, articles)
	}
	return articles, nil
}

// Update edits a stored article's text and metadata.
func (p *Pipeline) Update(ctx context.Context, id string, upd domain.ArticleUpdate) error {
	if strings.TrimSpace(upd.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", apperrors.ErrInvalidInput)
	}
	if err := p.repo.Update(ctx, id, upd); err != nil {
		return err
	}
	p.invalidateCache(ctx)
	return nil
}

// Delete removes an article, cancels any in-flight synthesis job for it and
// deletes its audio asset.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	article, err := p.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	p.cancelJob(id)

	if article.AudioRef != "" {
		if err := p.store.Delete(ctx, article.AudioRef); err != nil {
			p.logger.Warn("delete audio blob failed", "id", id, "ref", article.AudioRef, "error", err)
		}
	}
	if err := p.repo.Delete(ctx, id); err != nil {
		return err
	}

	p.invalidateCache(ctx)
	p.publish(ctx, domain.EventArticleDeleted, id, "")
	p.logger.Info("article deleted", "id", id)
	return nil
}

// DeleteAudio removes an article's synthesized audio and resets its status
// to NONE, making the article eligible for synthesis again.
func (p *Pipeline) DeleteAudio(ctx context.Context, id string) error {
	article, err := p.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if article.AudioStatus == domain.AudioPending {
		return fmt.Errorf("article %s: %w", id, apperrors.ErrAlreadyInProgress)
	}

	if article.AudioRef != "" {
		if err := p.store.Delete(ctx, article.AudioRef); err != nil {
			return fmt.Errorf("delete audio blob: %w", err)
		}
	}
	if err := p.repo.UpdateAudioStatus(ctx, id, domain.AudioNone, ""); err != nil {
		return err
	}

	p.invalidateCache(ctx)
	p.logger.Info("audio deleted", "id", id, "ref", article.AudioRef)
	return nil
}

// RequestSynthesis starts audio synthesis for an article. It returns
// immediately; the job runs in the background. Concurrent requests for the
// same article coalesce: exactly one wins, the rest observe
// ErrAlreadyInProgress (or ErrAudioReady when audio already exists).
func (p *Pipeline) RequestSynthesis(ctx context.Context, id string) error {
	article, err := p.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(article.Content) == "" {
		return fmt.Errorf("%w: article %s has no text", apperrors.ErrEmptyContent, id)
	}

	won, err := p.repo.TryTransition(ctx, id,
		[]domain.AudioStatus{domain.AudioNone, domain.AudioFailed}, domain.AudioPending)
	if err != nil {
		return fmt.Errorf("claim synthesis: %w", err)
	}
	if !won {
		// Lost the race or synthesis already finished; re-read to tell which.
		current, err := p.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		switch current.AudioStatus {
		case domain.AudioReady:
			return fmt.Errorf("article %s: %w", id, apperrors.ErrAudioReady)
		default:
			return fmt.Errorf("article %s: %w", id, apperrors.ErrAlreadyInProgress)
		}
	}

	jobCtx, cancel := context.WithCancel(p.jobCtx)
	p.mu.Lock()
	p.jobs[id] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.jobs, id)
			p.mu.Unlock()
			cancel()
		}()
		p.runJob(jobCtx, article)
	}()

	p.logger.Info("synthesis job started", "id", id, "bytes", len(article.Content))
	return nil
}

// AudioStream opens the assembled audio of a READY article for reading.
func (p *Pipeline) AudioStream(ctx context.Context, id string) (io.ReadSeekCloser, time.Time, error) {
	article, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, time.Time{}, err
	}
	if article.AudioStatus != domain.AudioReady || article.AudioRef == "" {
		return nil, time.Time{}, fmt.Errorf("article %s: %w", id, apperrors.ErrAudioNotFound)
	}
	return p.store.Open(ctx, article.AudioRef)
}

// SweepStale fails out articles stuck in PENDING beyond the deadline. It is
// the crash-recovery path: a job that died without reporting leaves PENDING
// behind, which would otherwise block resynthesis forever.
func (p *Pipeline) SweepStale(ctx context.Context) {
	n, err := p.repo.FailStalePending(ctx, p.pendingDeadline)
	if err != nil {
		p.logger.Error("stale pending sweep failed", "error", err)
		return
	}
	if n > 0 {
		p.invalidateCache(ctx)
		p.logger.Warn("failed out stale pending articles", "count", n)
	}
}

// runJob executes one synthesis job end to end. Any failure, including
// cancellation, leaves the article FAILED with no stored audio.
func (p *Pipeline) runJob(ctx context.Context, article domain.Article) {
	started := time.Now()
	logger := p.logger.With("id", article.ID)

	audio, err := p.synthesize(ctx, article)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, context.Canceled) {
			outcome = "canceled"
			logger.Info("synthesis job canceled")
		} else {
			logger.Error("synthesis job failed", "error", err)
		}
		p.finishJob(article, domain.AudioFailed, "")
		p.publish(context.Background(), domain.EventAudioFailed, article.ID, err.Error())
		if p.metrics != nil {
			p.metrics.ObserveJob(outcome, time.Since(started))
		}
		return
	}

	// Persist the blob first; status flips to READY only once audio exists.
	ref, err := p.store.Put(context.Background(), article.ID, audio)
	if err != nil {
		logger.Error("store audio failed", "error", err)
		p.finishJob(article, domain.AudioFailed, "")
		p.publish(context.Background(), domain.EventAudioFailed, article.ID, err.Error())
		if p.metrics != nil {
			p.metrics.ObserveJob("failure", time.Since(started))
		}
		return
	}

	p.finishJob(article, domain.AudioReady, ref)
	p.publish(context.Background(), domain.EventAudioReady, article.ID, ref)
	if p.metrics != nil {
		p.metrics.ObserveJob("success", time.Since(started))
		p.metrics.AudioBytesWritten.Add(float64(len(audio)))
	}
	logger.Info("synthesis job finished",
		"ref", ref, "bytes", len(audio), "elapsed", time.Since(started))

	if p.notifier != nil {
		article.AudioStatus = domain.AudioReady
		article.AudioRef = ref
		if err := p.notifier.AudioReady(context.Background(), article); err != nil {
			logger.Warn("audio ready notification failed", "error", err)
		}
	}
}

// synthesize produces the assembled WAV for one article.
func (p *Pipeline) synthesize(ctx context.Context, article domain.Article) ([]byte, error) {
	chunks, err := p.chunker.Chunk(article.Content)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	if p.metrics != nil {
		for _, c := range chunks {
			if c.HardCut {
				p.metrics.HardSplitChunksTotal.Inc()
			}
		}
	}

	segments, err := p.pool.Run(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("synthesize chunks: %w", err)
	}

	audio, err := p.assembler.Assemble(segments)
	if err != nil {
		return nil, fmt.Errorf("assemble audio: %w", err)
	}
	return audio, nil
}

// finishJob records the job outcome. The article may have been deleted while
// the job ran; that is not an error.
func (p *Pipeline) finishJob(article domain.Article, status domain.AudioStatus, ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.repo.UpdateAudioStatus(ctx, article.ID, status, ref); err != nil {
		if errors.Is(err, apperrors.ErrArticleNotFound) {
			// Deleted mid-job; remove the orphan blob if we wrote one.
			if ref != "" {
				if derr := p.store.Delete(ctx, ref); derr != nil {
					p.logger.Warn("delete orphan audio failed", "ref", ref, "error", derr)
				}
			}
			return
		}
		p.logger.Error("record job outcome failed", "id", article.ID, "status", status, "error", err)
		return
	}
	p.invalidateCache(ctx)
}

func (p *Pipeline) cancelJob(id string) {
	p.mu.Lock()
	cancel, ok := p.jobs[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Pipeline) publish(ctx context.Context, typ domain.EventType, articleID, detail string) {
	if p.publisher == nil {
		return
	}
	event := domain.Event{
		Type:       typ,
		ArticleID:  articleID,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish event failed", "type", typ, "id", articleID, "error", err)
	}
}

func (p *Pipeline) invalidateCache(ctx context.Context) {
	if p.cache != nil {
		p.cache.Invalidate(ctx)
	}
}

func (p *Pipeline) countIngestFailure(reason string) {
	if p.metrics != nil {
		p.metrics.IngestFailuresTotal.WithLabelValues(reason).Inc()
	}
}
