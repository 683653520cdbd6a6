package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/ports"
)

// ChatGPTCleaner rewrites extracted article text through an OpenAI-compatible
// chat API: one pass to strip leftover page fragments, one to improve
// readability for listening. It is optional; ingestion proceeds without it
// when no API key is configured.
type ChatGPTCleaner struct {
	endpoint          string
	model             string
	apiKey            string
	cleanPrompt       string
	readabilityPrompt string
	httpClient        *http.Client
}

var _ ports.ContentCleaner = (*ChatGPTCleaner)(nil)

// NewChatGPTCleaner builds a cleaner from configuration.
func NewChatGPTCleaner(cfg config.ChatGPTConfig) *ChatGPTCleaner {
	return &ChatGPTCleaner{
		endpoint:          cfg.Endpoint,
		model:             cfg.Model,
		apiKey:            cfg.APIKey,
		cleanPrompt:       cfg.CleanPrompt,
		readabilityPrompt: cfg.ReadabilityPrompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Clean runs both rewrite passes and returns the final text.
func (c *ChatGPTCleaner) Clean(ctx context.Context, text string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt cleaner misconfigured")
	}

	cleaned, err := c.complete(ctx, c.cleanPrompt, text)
	if err != nil {
		return "", fmt.Errorf("cleanup pass: %w", err)
	}

	improved, err := c.complete(ctx, c.readabilityPrompt, cleaned)
	if err != nil {
		return "", fmt.Errorf("readability pass: %w", err)
	}
	return improved, nil
}

func (c *ChatGPTCleaner) complete(ctx context.Context, prompt, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt},
			{"role": "user", "content": text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}

	content := strings.TrimSpace(payload.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat response is empty")
	}
	return content, nil
}
