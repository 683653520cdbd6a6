package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"VoiceScribe/internal/config"
	"VoiceScribe/pkg/resilience"
)

// Error classifies a failed fetch. Timeouts, connection failures and 5xx
// responses are retryable; 4xx responses and invalid URLs are not.
type Error struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsRetryable() bool { return e.Retryable }

// Fetcher retrieves raw HTML for a URL with a request timeout and bounded
// retries. It holds no state beyond its HTTP client.
type Fetcher struct {
	client *http.Client
	cfg    config.FetcherConfig
	logger *slog.Logger
}

// New wires an HTTP client; a nil client gets the configured timeout.
func New(client *http.Client, cfg config.FetcherConfig, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, cfg: cfg, logger: logger}
}

// Fetch retrieves the page body for rawURL. Transient failures are retried
// with exponential backoff and jitter; 4xx and invalid URLs fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}

	var body string
	err := resilience.Retry(ctx, "fetch "+rawURL, resilience.RetryConfig{
		MaxAttempts:  f.cfg.RetryAttempts,
		InitialDelay: f.cfg.RetryDelay,
	}, func() error {
		var err error
		body, err = f.fetchOnce(ctx, rawURL)
		return err
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &Error{URL: rawURL, Retryable: false, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Connection failures and timeouts are transient classes.
		return "", &Error{URL: rawURL, Retryable: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		retryable := resp.StatusCode >= http.StatusInternalServerError ||
			resp.StatusCode == http.StatusTooManyRequests
		return "", &Error{URL: rawURL, StatusCode: resp.StatusCode, Retryable: retryable}
	}

	limit := f.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", &Error{URL: rawURL, Retryable: true, Err: err}
	}

	f.logger.Debug("fetched page", "url", rawURL, "bytes", len(raw))
	return string(raw), nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &Error{URL: rawURL, Retryable: false, Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &Error{URL: rawURL, Retryable: false, Err: fmt.Errorf("unsupported scheme %q", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return &Error{URL: rawURL, Retryable: false, Err: fmt.Errorf("missing host")}
	}
	return nil
}
