package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/extract"
	"VoiceScribe/internal/fetcher"
	"VoiceScribe/internal/ports"
	"VoiceScribe/internal/synthesis"
	apperrors "VoiceScribe/pkg/errors"
)

// fakeRepo is an in-memory ArticleRepository with the same atomicity
// guarantees as the real one: TryTransition checks and writes under one lock.
type fakeRepo struct {
	mu       sync.Mutex
	seq      int
	articles map[string]domain.Article
}

var _ ports.ArticleRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{articles: make(map[string]domain.Article)}
}

func (r *fakeRepo) Save(_ context.Context, a domain.Article) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	a.ID = fmt.Sprintf("art-%d", r.seq)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.articles[a.ID] = a
	return a.ID, nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (domain.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return domain.Article{}, apperrors.ErrArticleNotFound
	}
	return a, nil
}

func (r *fakeRepo) List(_ context.Context) ([]domain.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Article, 0, len(r.articles))
	for _, a := range r.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, upd domain.ArticleUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return apperrors.ErrArticleNotFound
	}
	a.Content = upd.Content
	if upd.Title != nil {
		a.Title = *upd.Title
	}
	if upd.Author != nil {
		a.Author = *upd.Author
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	a.UpdatedAt = time.Now()
	r.articles[id] = a
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.articles[id]; !ok {
		return apperrors.ErrArticleNotFound
	}
	delete(r.articles, id)
	return nil
}

func (r *fakeRepo) UpdateAudioStatus(_ context.Context, id string, status domain.AudioStatus, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return apperrors.ErrArticleNotFound
	}
	a.AudioStatus = status
	a.AudioRef = ref
	a.UpdatedAt = time.Now()
	r.articles[id] = a
	return nil
}

func (r *fakeRepo) TryTransition(_ context.Context, id string, from []domain.AudioStatus, to domain.AudioStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return false, apperrors.ErrArticleNotFound
	}
	for _, f := range from {
		if a.AudioStatus == f {
			a.AudioStatus = to
			a.UpdatedAt = time.Now()
			r.articles[id] = a
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) FailStalePending(_ context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, a := range r.articles {
		if a.AudioStatus == domain.AudioPending && a.UpdatedAt.Before(cutoff) {
			a.AudioStatus = domain.AudioFailed
			a.AudioRef = ""
			a.UpdatedAt = time.Now()
			r.articles[id] = a
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) setStatus(t *testing.T, id string, status domain.AudioStatus, updatedAt time.Time) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		t.Fatalf("article %s not found", id)
	}
	a.AudioStatus = status
	a.UpdatedAt = updatedAt
	r.articles[id] = a
}

// fakeStore keeps audio blobs in memory.
type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

var _ ports.AudioStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, id string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := id + ".wav"
	s.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func (s *fakeStore) Open(_ context.Context, ref string) (io.ReadSeekCloser, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, time.Time{}, apperrors.ErrAudioNotFound
	}
	return nopCloser{bytes.NewReader(data)}, time.Now(), nil
}

func (s *fakeStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

func (s *fakeStore) get(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	return data, ok
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

var testWAVFormat = synthesis.WAVFormat{Channels: 1, SampleRate: 24000, BitsPerSample: 16}

// fakeSynth turns chunk text into a WAV whose PCM payload is the text itself,
// so the assembled output can be checked against the article content.
type fakeSynth struct {
	delay time.Duration
	fail  func(text string) error
}

var _ ports.Synthesizer = (*fakeSynth)(nil)

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return nil, err
		}
	}
	return synthesis.EncodeWAV(testWAVFormat, []byte(text)), nil
}

func testPipeline(t *testing.T, repo *fakeRepo, store *fakeStore, synth ports.Synthesizer) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(Deps{
		Repo:      repo,
		Store:     store,
		Fetcher:   fetcher.New(nil, config.FetcherConfig{Timeout: time.Second, RetryAttempts: 1}, logger),
		Extractor: extract.New(config.ExtractorConfig{}, logger),
		Chunker:   synthesis.NewChunker(40, logger),
		Pool: synthesis.NewPool(synth, config.SynthesisConfig{
			PoolSize:      2,
			RetryAttempts: 2,
			RetryDelay:    time.Millisecond,
			RetryMaxDelay: 5 * time.Millisecond,
		}, logger, nil),
		Assembler:       synthesis.NewAssembler(logger),
		Logger:          logger,
		PendingDeadline: time.Minute,
	})
	t.Cleanup(p.Close)
	return p
}

func seedArticle(t *testing.T, repo *fakeRepo, content string) string {
	t.Helper()
	id, err := repo.Save(context.Background(), domain.Article{
		Title:       "Seeded",
		Content:     content,
		SourceType:  domain.SourceHTML,
		AudioStatus: domain.AudioNone,
	})
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
	return id
}

func waitForStatus(t *testing.T, repo *fakeRepo, id string, want domain.AudioStatus) domain.Article {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		a, err := repo.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get article: %v", err)
		}
		if a.AudioStatus == want {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	a, _ := repo.Get(context.Background(), id)
	t.Fatalf("article %s stuck in %s, want %s", id, a.AudioStatus, want)
	return domain.Article{}
}

const ingestPage = `<html><head>
  <meta property="og:title" content="Ingested Title">
  <meta name="author" content="A. Writer">
</head><body><article>
  <p>The first paragraph carries enough words to clear the minimum content length used by the extractor.</p>
  <p>The second paragraph adds a little more body so the density heuristic has something to weigh.</p>
</article></body></html>`

func TestIngestHTML(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{})

	article, err := p.Ingest(context.Background(), IngestRequest{HTML: ingestPage})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if article.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if article.Title != "Ingested Title" || article.Author != "A. Writer" {
		t.Fatalf("metadata = %q / %q", article.Title, article.Author)
	}
	if article.SourceType != domain.SourceHTML {
		t.Fatalf("source type = %s", article.SourceType)
	}
	if article.AudioStatus != domain.AudioNone {
		t.Fatalf("new article has audio status %s", article.AudioStatus)
	}
	if !strings.Contains(article.Content, "first paragraph") {
		t.Fatalf("content = %q", article.Content)
	}
}

func TestIngestValidatesInput(t *testing.T) {
	t.Parallel()

	p := testPipeline(t, newFakeRepo(), newFakeStore(), &fakeSynth{})

	cases := []IngestRequest{
		{},
		{URL: "https://example.com/a", HTML: "<html></html>"},
	}
	for _, req := range cases {
		if _, err := p.Ingest(context.Background(), req); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Fatalf("Ingest(%+v): expected ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestSynthesisHappyPath(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	store := newFakeStore()
	p := testPipeline(t, repo, store, &fakeSynth{})

	content := "Sentence number one. Sentence number two. Sentence number three ends here."
	id := seedArticle(t, repo, content)

	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("RequestSynthesis returned error: %v", err)
	}

	article := waitForStatus(t, repo, id, domain.AudioReady)
	if article.AudioRef == "" {
		t.Fatal("ready article has no audio ref")
	}

	audio, ok := store.get(article.AudioRef)
	if !ok {
		t.Fatalf("no blob stored under %s", article.AudioRef)
	}
	_, pcm, err := synthesis.DecodeWAV(audio)
	if err != nil {
		t.Fatalf("decode assembled audio: %v", err)
	}
	// Each chunk's synthetic audio carries the chunk text, so the merged
	// PCM must reproduce the article content exactly and in order.
	if string(pcm) != content {
		t.Fatalf("assembled audio carries %q, want %q", pcm, content)
	}

	r, _, err := p.AudioStream(context.Background(), id)
	if err != nil {
		t.Fatalf("AudioStream returned error: %v", err)
	}
	r.Close()
}

func TestSynthesisFailureIsAllOrNothing(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	store := newFakeStore()
	synth := &fakeSynth{fail: func(text string) error {
		if strings.Contains(text, "two") {
			return &synthesis.Error{StatusCode: 400, Message: "rejected"}
		}
		return nil
	}}
	p := testPipeline(t, repo, store, synth)

	id := seedArticle(t, repo, "Sentence number one. Sentence number two. Sentence number three ends here.")
	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("RequestSynthesis returned error: %v", err)
	}

	article := waitForStatus(t, repo, id, domain.AudioFailed)
	if article.AudioRef != "" {
		t.Fatalf("failed article still holds audio ref %q", article.AudioRef)
	}
	if store.len() != 0 {
		t.Fatal("partial audio escaped to the store")
	}

	if _, _, err := p.AudioStream(context.Background(), id); !errors.Is(err, apperrors.ErrAudioNotFound) {
		t.Fatalf("expected ErrAudioNotFound, got %v", err)
	}

	// FAILED is retryable: a new request must win the transition again.
	synth.fail = nil
	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("resynthesis request returned error: %v", err)
	}
	waitForStatus(t, repo, id, domain.AudioReady)
}

func TestSynthesisCoalescing(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{delay: 50 * time.Millisecond})

	id := seedArticle(t, repo, "A reasonably short sentence to synthesize.")

	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("first request returned error: %v", err)
	}
	if err := p.RequestSynthesis(context.Background(), id); !errors.Is(err, apperrors.ErrAlreadyInProgress) {
		t.Fatalf("second request: expected ErrAlreadyInProgress, got %v", err)
	}

	waitForStatus(t, repo, id, domain.AudioReady)

	if err := p.RequestSynthesis(context.Background(), id); !errors.Is(err, apperrors.ErrAudioReady) {
		t.Fatalf("request after READY: expected ErrAudioReady, got %v", err)
	}
}

func TestSynthesisConcurrentRequestsOneWinner(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{delay: 20 * time.Millisecond})

	id := seedArticle(t, repo, "A sentence for the race between requests.")

	const requests = 8
	errs := make(chan error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.RequestSynthesis(context.Background(), id)
		}()
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, apperrors.ErrAlreadyInProgress):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("%d requests won the transition, want exactly 1", winners)
	}

	waitForStatus(t, repo, id, domain.AudioReady)
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	store := newFakeStore()
	p := testPipeline(t, repo, store, &fakeSynth{delay: 200 * time.Millisecond})

	id := seedArticle(t, repo, "A sentence that takes a while to synthesize.")
	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("RequestSynthesis returned error: %v", err)
	}

	if err := p.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.Get(context.Background(), id); !errors.Is(err, apperrors.ErrArticleNotFound) {
		t.Fatalf("article still present after delete: %v", err)
	}

	// The cancelled job must not leave audio behind.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && store.len() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if n := store.len(); n != 0 {
		t.Fatalf("%d orphan blobs left after delete", n)
	}
}

func TestDeleteAudioResetsToNone(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	store := newFakeStore()
	p := testPipeline(t, repo, store, &fakeSynth{})

	id := seedArticle(t, repo, "A sentence worth hearing twice.")
	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("RequestSynthesis returned error: %v", err)
	}
	article := waitForStatus(t, repo, id, domain.AudioReady)

	if err := p.DeleteAudio(context.Background(), id); err != nil {
		t.Fatalf("DeleteAudio returned error: %v", err)
	}
	if _, ok := store.get(article.AudioRef); ok {
		t.Fatal("blob still stored after audio deletion")
	}

	a, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get article: %v", err)
	}
	if a.AudioStatus != domain.AudioNone || a.AudioRef != "" {
		t.Fatalf("after audio deletion: status %s ref %q", a.AudioStatus, a.AudioRef)
	}

	// The article is synthesizable again.
	if err := p.RequestSynthesis(context.Background(), id); err != nil {
		t.Fatalf("resynthesis request returned error: %v", err)
	}
	waitForStatus(t, repo, id, domain.AudioReady)
}

func TestRequestSynthesisEmptyContent(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{})

	id := seedArticle(t, repo, "   ")
	if err := p.RequestSynthesis(context.Background(), id); !errors.Is(err, apperrors.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if err := p.RequestSynthesis(context.Background(), "missing"); !errors.Is(err, apperrors.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestSweepStaleFailsStuckPending(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{})

	stuck := seedArticle(t, repo, "Stuck article content.")
	fresh := seedArticle(t, repo, "Fresh article content.")
	repo.setStatus(t, stuck, domain.AudioPending, time.Now().Add(-2*time.Hour))
	repo.setStatus(t, fresh, domain.AudioPending, time.Now())

	p.SweepStale(context.Background())

	if a, _ := repo.Get(context.Background(), stuck); a.AudioStatus != domain.AudioFailed {
		t.Fatalf("stale article status = %s, want failed", a.AudioStatus)
	}
	if a, _ := repo.Get(context.Background(), fresh); a.AudioStatus != domain.AudioPending {
		t.Fatalf("fresh article status = %s, want pending", a.AudioStatus)
	}
}

func TestUpdateRequiresContent(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	p := testPipeline(t, repo, newFakeStore(), &fakeSynth{})

	id := seedArticle(t, repo, "Original content of the article.")
	if err := p.Update(context.Background(), id, domain.ArticleUpdate{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	title := "New Title"
	if err := p.Update(context.Background(), id, domain.ArticleUpdate{Content: "Edited.", Title: &title}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	a, err := p.Article(context.Background(), id)
	if err != nil {
		t.Fatalf("Article returned error: %v", err)
	}
	if a.Content != "Edited." || a.Title != "New Title" {
		t.Fatalf("updated article = %q / %q", a.Title, a.Content)
	}
}
