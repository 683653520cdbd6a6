package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/ports"
)

// Notifier sends a short message to a Telegram chat when an article's
// audio becomes ready.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier builds a notifier from configuration.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	return &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AudioReady announces a finished synthesis.
func (n *Notifier) AudioReady(ctx context.Context, article domain.Article) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	title := article.Title
	if title == "" {
		title = article.ID
	}
	text := fmt.Sprintf("🔊 Audio ready: %s", title)
	if article.URL != "" {
		text += "\n" + article.URL
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded with %s", resp.Status)
	}
	return nil
}
