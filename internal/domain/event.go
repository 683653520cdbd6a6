package domain

import "time"

// EventType names an article lifecycle transition published to the event bus.
type EventType string

const (
	EventArticleIngested EventType = "article.ingested"
	EventArticleDeleted  EventType = "article.deleted"
	EventAudioReady      EventType = "audio.ready"
	EventAudioFailed     EventType = "audio.failed"
)

// Event is the payload emitted for downstream consumers (analytics, audit).
type Event struct {
	Type       EventType `json:"type"`
	ArticleID  string    `json:"article_id"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
