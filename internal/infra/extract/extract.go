// Package extract pulls the main article body out of fetched page HTML.
// It runs a readability-style extractor, normalizes the text for storage
// and embedding, and backfills the publish time from page metadata when
// the feed supplied none.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/utils/text"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Result is the extracted article content after normalization.
type Result struct {
	Title       string
	Text        string
	PublishedAt *time.Time
}

// Extractor turns raw page HTML into normalized article text.
//
// Thread safety: Extractor is stateless and safe for concurrent use.
type Extractor struct{}

// New creates an extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract runs the readability algorithm over html and normalizes the
// result. pageURL resolves relative references; extraction still works
// when it is unparseable. A crashed extractor reports READABILITY_ERROR;
// a page whose title or body is empty after normalization reports
// NO_ARTICLE_FOUND.
func (e *Extractor) Extract(html []byte, pageURL string) (*Result, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		parsedURL = nil
	}

	article, err := readability.FromReader(bytes.NewReader(html), parsedURL)
	if err != nil {
		return nil, entity.NewPipelineError(entity.KindReadabilityError, "extract.Extract", err)
	}

	title := text.CleanString(article.Title)
	body := text.NormalizeArticleText(article.TextContent)
	if title == "" || body == "" {
		return nil, entity.NewPipelineError(entity.KindNoArticleFound, "extract.Extract",
			fmt.Errorf("no usable content (title %d chars, body %d chars)", len(title), len(body)))
	}

	result := &Result{Title: title, Text: body}
	if article.PublishedTime != nil {
		result.PublishedAt = article.PublishedTime
	} else {
		result.PublishedAt = metaPublishedTime(html)
	}

	return result, nil
}

// metaTimeProperties are checked in order against meta property= and
// name= attributes when readability finds no publish time itself.
var metaTimeProperties = []string{
	"article:published_time",
	"og:published_time",
	"article:modified_time",
	"og:updated_time",
	"date",
}

var metaTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// metaPublishedTime scans page metadata for a publish timestamp. A page
// without one, or with one in a shape none of the known layouts match,
// yields nil.
func metaPublishedTime(html []byte) *time.Time {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	for _, prop := range metaTimeProperties {
		selector := fmt.Sprintf("meta[property=%q], meta[name=%q]", prop, prop)
		content, ok := doc.Find(selector).First().Attr("content")
		if !ok {
			continue
		}
		if ts := parseMetaTime(strings.TrimSpace(content)); ts != nil {
			return ts
		}
	}

	return nil
}

func parseMetaTime(value string) *time.Time {
	for _, layout := range metaTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
