package domain

import "time"

// AudioStatus tracks the audio lifecycle of one article. It is the single
// coordination point for the at-most-one-synthesis-job guarantee.
type AudioStatus string

const (
	AudioNone    AudioStatus = "none"
	AudioPending AudioStatus = "pending"
	AudioReady   AudioStatus = "ready"
	AudioFailed  AudioStatus = "failed"
)

// SourceType records how an article entered the system.
type SourceType string

const (
	SourceURL  SourceType = "url"
	SourceHTML SourceType = "html"
)

// Article is the core entity: extracted text plus metadata and audio state.
// AudioRef is non-empty exactly when AudioStatus is AudioReady.
type Article struct {
	ID          string
	Title       string
	Author      string
	Description string
	Content     string
	URL         string
	SourceType  SourceType
	PublishedAt *time.Time
	AudioStatus AudioStatus
	AudioRef    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArticleUpdate carries an edit to a stored article. Nil pointer fields are
// left unchanged; Content is required.
type ArticleUpdate struct {
	Content     string
	Title       *string
	Author      *string
	Description *string
}

// ExtractedArticle is the extractor's output before an Article exists.
type ExtractedArticle struct {
	Title       string
	Author      string
	Description string
	Content     string
	PublishedAt *time.Time
}
