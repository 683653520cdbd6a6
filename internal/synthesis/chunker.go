package synthesis

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"VoiceScribe/internal/domain"
	apperrors "VoiceScribe/pkg/errors"
)

// Chunker splits normalized article text into ordered chunks that respect the
// synthesis API's per-call byte limit. Chunks are contiguous slices of the
// input: concatenating them in index order reproduces the input exactly.
type Chunker struct {
	maxBytes int
	logger   *slog.Logger
}

// NewChunker builds a chunker for the given per-call byte limit.
func NewChunker(maxBytes int, logger *slog.Logger) *Chunker {
	if maxBytes <= 0 {
		maxBytes = 5000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{maxBytes: maxBytes, logger: logger}
}

// Chunk splits on paragraph boundaries first, falls back to sentence
// boundaries for oversized paragraphs, and hard-splits an oversized sentence
// at the byte limit as a logged last resort (never inside a rune).
func (c *Chunker) Chunk(text string) ([]domain.TextChunk, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to chunk", apperrors.ErrEmptyContent)
	}

	type piece struct {
		text string
		hard bool
	}

	var pieces []piece
	for _, para := range splitAfter(text, '\n') {
		if len(para) <= c.maxBytes {
			pieces = append(pieces, piece{text: para})
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= c.maxBytes {
				pieces = append(pieces, piece{text: sent})
				continue
			}
			c.logger.Warn("sentence exceeds chunk limit, hard splitting",
				"sentence_bytes", len(sent), "limit", c.maxBytes)
			for _, part := range hardSplit(sent, c.maxBytes) {
				pieces = append(pieces, piece{text: part, hard: true})
			}
		}
	}

	var (
		chunks []domain.TextChunk
		sb     strings.Builder
		hard   bool
	)
	flush := func() {
		if sb.Len() == 0 {
			return
		}
		chunks = append(chunks, domain.TextChunk{
			Index:   len(chunks),
			Text:    sb.String(),
			ByteLen: sb.Len(),
			HardCut: hard,
		})
		sb.Reset()
		hard = false
	}

	for _, p := range pieces {
		if sb.Len() > 0 && sb.Len()+len(p.text) > c.maxBytes {
			flush()
		}
		sb.WriteString(p.text)
		if p.hard {
			hard = true
		}
	}
	flush()

	return chunks, nil
}

// splitAfter cuts s into slices each ending with sep (the final slice may
// not). Every byte of s lands in exactly one slice.
func splitAfter(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// splitSentences cuts after terminal punctuation followed by spaces, keeping
// the punctuation and trailing spaces with the preceding sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(s) && s[j] == ' ' {
				j++
			}
			if j > i+1 {
				out = append(out, s[start:j])
				start = j
				i = j - 1
			}
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// hardSplit cuts s into max-byte slices at rune boundaries.
func hardSplit(s string, max int) []string {
	var out []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
