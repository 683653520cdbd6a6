package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	apperrors "VoiceScribe/pkg/errors"
)

// boilerplateSelector matches elements that never contribute article text.
const boilerplateSelector = "script, style, noscript, nav, header, footer, aside, form, iframe, button, svg"

// candidateSelector lists containers considered as the primary content block.
const candidateSelector = "article, main, section, div"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Extractor turns raw HTML into a normalized article. The readability
// thresholds come from configuration so they can be tuned per deployment.
type Extractor struct {
	cfg    config.ExtractorConfig
	logger *slog.Logger
}

// New builds an extractor with the given thresholds.
func New(cfg config.ExtractorConfig, logger *slog.Logger) *Extractor {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 100
	}
	if cfg.MinParagraphLen <= 0 {
		cfg.MinParagraphLen = 10
	}
	if cfg.MinTextDensity <= 0 {
		cfg.MinTextDensity = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract parses the document, locates the primary content block by
// paragraph-text density, and returns normalized text plus metadata. The
// heuristic is deterministic: identical input yields identical output.
func (e *Extractor) Extract(html string) (domain.ExtractedArticle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.ExtractedArticle{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedDocument, err)
	}

	meta := extractMetadata(doc)

	doc.Find(boilerplateSelector).Remove()

	block := e.primaryBlock(doc)
	content := normalizeWhitespace(e.collectParagraphs(block))

	if len(content) < e.cfg.MinContentLength {
		return domain.ExtractedArticle{}, fmt.Errorf("%w: extracted %d chars, need %d",
			apperrors.ErrEmptyContent, len(content), e.cfg.MinContentLength)
	}

	e.logger.Debug("extracted article",
		"title", meta.title, "content_chars", len(content))

	return domain.ExtractedArticle{
		Title:       meta.title,
		Author:      meta.author,
		Description: meta.description,
		Content:     content,
		PublishedAt: parsePublishedAt(meta.date),
	}, nil
}

// primaryBlock scores every candidate container by the amount of
// paragraph-like text it holds, weighted by the ratio of paragraph text to
// all text inside the container. A wrapper that also holds menus and teasers
// dilutes its own density, so the tightest block around the article wins.
// Ties keep the earliest candidate in document order.
func (e *Extractor) primaryBlock(doc *goquery.Document) *goquery.Selection {
	var (
		best      *goquery.Selection
		bestScore float64
	)

	doc.Find(candidateSelector).Each(func(_ int, candidate *goquery.Selection) {
		paraLen := 0
		candidate.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := collapseSpace(p.Text()); len(text) >= e.cfg.MinParagraphLen {
				paraLen += len(text)
			}
		})
		if paraLen == 0 {
			return
		}

		totalLen := len(collapseSpace(candidate.Text()))
		if totalLen == 0 {
			return
		}

		density := float64(paraLen) / float64(totalLen)
		if density < e.cfg.MinTextDensity {
			return
		}

		if score := float64(paraLen) * density; score > bestScore {
			best, bestScore = candidate, score
		}
	})

	if best == nil {
		return doc.Find("body")
	}
	return best
}

// collectParagraphs emits the block's paragraphs in document order, one per
// line.
func (e *Extractor) collectParagraphs(block *goquery.Selection) string {
	var parts []string
	block.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapseSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		// Content without <p> markup still counts when dense enough.
		if text := collapseSpace(block.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

type metadata struct {
	title       string
	author      string
	description string
	date        string
}

// extractMetadata mirrors the selector priority order used for article
// pages: explicit meta markup first, then JSON-LD, then inferred elements.
func extractMetadata(doc *goquery.Document) metadata {
	ld := extractJSONLD(doc)

	title := firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		ld.stringValue("headline"),
		collapseSpace(doc.Find("h1").First().Text()),
		collapseSpace(doc.Find("title").First().Text()),
		metaContent(doc, `meta[name="title"]`),
	)

	author := firstNonEmpty(
		metaContent(doc, `meta[name="author"]`),
		metaContent(doc, `meta[property="article:author"]`),
		ld.authorName(),
		collapseSpace(doc.Find(`[rel="author"]`).First().Text()),
		collapseSpace(doc.Find(`a[class*="author"], span[class*="author"], a[class*="byline"], span[class*="byline"]`).First().Text()),
		metaContent(doc, `meta[name="twitter:creator"]`),
	)

	date := firstNonEmpty(
		metaContent(doc, `meta[property="article:published_time"]`),
		metaContent(doc, `meta[name="publication_date"]`),
		metaContent(doc, `meta[name="pubdate"]`),
		ld.stringValue("datePublished"),
		doc.Find("time[datetime]").First().AttrOr("datetime", ""),
		collapseSpace(doc.Find(`time[class*="date"], time[class*="published"]`).First().Text()),
	)

	description := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[name="twitter:description"]`),
		ld.stringValue("description"),
	)

	return metadata{title: title, author: author, description: description, date: date}
}

type jsonLD map[string]any

func extractJSONLD(doc *goquery.Document) jsonLD {
	merged := jsonLD{}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		if list, ok := data.([]any); ok && len(list) > 0 {
			data = list[0]
		}
		if obj, ok := data.(map[string]any); ok {
			for k, v := range obj {
				merged[k] = v
			}
		}
	})
	return merged
}

func (ld jsonLD) stringValue(key string) string {
	if v, ok := ld[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (ld jsonLD) authorName() string {
	author := ld["author"]
	if list, ok := author.([]any); ok && len(list) > 0 {
		author = list[0]
	}
	switch v := author.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parsePublishedAt(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

// collapseSpace reduces every run of whitespace to a single space and trims.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeWhitespace collapses blank-line runs, trims each paragraph, and
// keeps paragraph breaks as single newlines. It runs exactly once, before
// chunking, so chunk concatenation can stay byte-exact afterwards.
func normalizeWhitespace(text string) string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		if p := collapseSpace(line); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n")
}
