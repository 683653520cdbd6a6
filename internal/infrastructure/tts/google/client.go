package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/ports"
	"VoiceScribe/internal/synthesis"
)

// Frame rate bounds accepted from the synthesis API; anything outside is
// treated as a corrupt response.
const (
	minFrameRate = 16000
	maxFrameRate = 48000
)

// Client talks to the Google Cloud Text-to-Speech REST API and returns
// LINEAR16 WAV bytes per chunk.
type Client struct {
	endpoint     string
	apiKey       string
	languageCode string
	voiceName    string
	speakingRate float64
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.Synthesizer = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.TTSConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		languageCode: cfg.LanguageCode,
		voiceName:    cfg.VoiceName,
		speakingRate: cfg.SpeakingRate,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Synthesize converts one text chunk to audio. The error classification
// drives the worker pool's retry policy: 429 and 5xx are retryable, 4xx is
// permanent, 403 marks exhausted quota.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &synthesis.Error{Message: "synthesis api key not configured"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &synthesis.Error{Message: "empty chunk text"}
	}

	body, err := json.Marshal(map[string]any{
		"input": map[string]string{"text": text},
		"voice": map[string]string{
			"languageCode": c.languageCode,
			"name":         c.voiceName,
		},
		"audioConfig": map[string]any{
			"audioEncoding": "LINEAR16",
			"speakingRate":  c.speakingRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/text:synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("synthesis call: %w", ctx.Err())
		}
		return nil, &synthesis.Error{Retryable: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var payload struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &synthesis.Error{Retryable: true, Message: "decode response: " + err.Error()}
	}

	audio, err := base64.StdEncoding.DecodeString(payload.AudioContent)
	if err != nil {
		return nil, &synthesis.Error{Message: "decode audio content: " + err.Error()}
	}

	if err := validateAudio(audio); err != nil {
		return nil, err
	}

	c.logger.Debug("synthesized chunk",
		"text_bytes", len(text), "audio_bytes", len(audio), "elapsed", time.Since(start))
	return audio, nil
}

func classifyStatus(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	message := strings.TrimSpace(string(detail))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &synthesis.Error{StatusCode: resp.StatusCode, Retryable: true, Message: message}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &synthesis.Error{StatusCode: resp.StatusCode, Retryable: true, Message: message}
	case resp.StatusCode == http.StatusForbidden:
		return &synthesis.Error{StatusCode: resp.StatusCode, QuotaExceeded: true, Message: message}
	default:
		return &synthesis.Error{StatusCode: resp.StatusCode, Message: message}
	}
}

// validateAudio rejects responses that decode but cannot be played: empty
// PCM payloads or frame rates outside the supported band.
func validateAudio(audio []byte) error {
	format, pcm, err := synthesis.DecodeWAV(audio)
	if err != nil {
		return &synthesis.Error{Message: "invalid audio payload: " + err.Error()}
	}
	if len(pcm) == 0 {
		return &synthesis.Error{Message: "audio payload has no frames"}
	}
	if format.SampleRate < minFrameRate || format.SampleRate > maxFrameRate {
		return &synthesis.Error{Message: fmt.Sprintf("unsupported frame rate %d", format.SampleRate)}
	}
	return nil
}
