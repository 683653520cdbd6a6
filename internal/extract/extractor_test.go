package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"VoiceScribe/internal/config"
	apperrors "VoiceScribe/pkg/errors"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title | Some Site</title>
  <meta property="og:title" content="The Quiet Rise of Ambient Computing">
  <meta name="author" content="Dana Wexler">
  <meta property="og:description" content="How always-on devices changed the home.">
  <meta property="article:published_time" content="2024-03-15T09:30:00Z">
  <script type="application/ld+json">{"@type":"Article","headline":"Wrong Headline"}</script>
</head>
<body>
  <nav><a href="/">Home</a><a href="/about">About</a></nav>
  <div class="sidebar">
    <p>Subscribe to our newsletter for more stories like this one every week.</p>
  </div>
  <article>
    <h1>The Quiet Rise of Ambient Computing</h1>
    <p>For a decade the devices crept into kitchens and hallways, listening and waiting, until nobody noticed them at all anymore.</p>
    <p>Their makers promised convenience, and for the most part delivered it, though the cost was measured in data rather than dollars.</p>
    <p>What happens next depends less on the technology than on the patience of the people living alongside it every single day.</p>
  </article>
  <footer>Copyright 2024. All rights reserved.</footer>
  <script>analytics.track("pageview");</script>
</body>
</html>`

func testExtractor() *Extractor {
	return New(config.ExtractorConfig{
		MinContentLength: 100,
		MinParagraphLen:  10,
		MinTextDensity:   0.5,
	}, nil)
}

func TestExtractArticle(t *testing.T) {
	t.Parallel()

	got, err := testExtractor().Extract(articlePage)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if got.Title != "The Quiet Rise of Ambient Computing" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Author != "Dana Wexler" {
		t.Fatalf("author = %q", got.Author)
	}
	if got.Description != "How always-on devices changed the home." {
		t.Fatalf("description = %q", got.Description)
	}
	if got.PublishedAt == nil {
		t.Fatal("expected a published date")
	}
	want := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	if !got.PublishedAt.Equal(want) {
		t.Fatalf("published at = %v, want %v", got.PublishedAt, want)
	}

	paragraphs := strings.Split(got.Content, "\n")
	if len(paragraphs) != 3 {
		t.Fatalf("got %d paragraphs, want 3:\n%s", len(paragraphs), got.Content)
	}
	if !strings.HasPrefix(paragraphs[0], "For a decade") {
		t.Fatalf("first paragraph = %q", paragraphs[0])
	}
	if strings.Contains(got.Content, "newsletter") {
		t.Fatal("sidebar text leaked into content")
	}
	if strings.Contains(got.Content, "Copyright") || strings.Contains(got.Content, "analytics") {
		t.Fatal("boilerplate leaked into content")
	}
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()

	e := testExtractor()
	first, err := e.Extract(articlePage)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := e.Extract(articlePage)
		if err != nil {
			t.Fatalf("Extract returned error on run %d: %v", i, err)
		}
		if next.Content != first.Content || next.Title != first.Title {
			t.Fatalf("extraction is not deterministic on run %d", i)
		}
	}
}

func TestExtractTooLittleContent(t *testing.T) {
	t.Parallel()

	page := `<html><body><article><p>Please log in to continue reading.</p></article></body></html>`
	if _, err := testExtractor().Extract(page); !errors.Is(err, apperrors.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestExtractJSONLDFallbacks(t *testing.T) {
	t.Parallel()

	page := `<html><head>
	  <script type="application/ld+json">
	    {"@type":"Article","headline":"Structured Headline","datePublished":"2023-07-01",
	     "author":{"@type":"Person","name":"R. Ellison"}}
	  </script>
	</head><body><article>
	  <p>` + strings.Repeat("A sentence of article body text to satisfy the length floor. ", 4) + `</p>
	</article></body></html>`

	got, err := testExtractor().Extract(page)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if got.Title != "Structured Headline" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Author != "R. Ellison" {
		t.Fatalf("author = %q", got.Author)
	}
	if got.PublishedAt == nil || got.PublishedAt.Format("2006-01-02") != "2023-07-01" {
		t.Fatalf("published at = %v", got.PublishedAt)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()

	in := "  First   paragraph  \n\n\n Second\tparagraph \n"
	want := "First paragraph\nSecond paragraph"
	if got := normalizeWhitespace(in); got != want {
		t.Fatalf("normalizeWhitespace = %q, want %q", got, want)
	}
}
