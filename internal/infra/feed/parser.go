// Package feed fetches and decodes publisher RSS/Atom/RDF feeds.
// It uses the gofeed library for decoding and normalizes every entry for
// the article pipeline: titles are whitespace-collapsed, links are
// canonicalized, and entries that cannot identify an article are dropped.
package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/utils/text"

	"github.com/mmcdole/gofeed"
)

// unknownField is the stand-in for a missing title or link. A missing link
// never survives validation; a missing title does.
const unknownField = "UNKNOWN"

// Entry is one normalized feed item in feed order.
type Entry struct {
	Title       string
	Link        string
	PublishedAt *time.Time
}

// Parser decodes feed documents into validated entries.
type Parser struct{}

// NewParser creates a feed parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a feed document and returns its valid entries in feed
// order. Individual malformed entries are dropped, never raised. The two
// failure modes are a document that is not a feed at all (PARSE_ERROR) and
// a feed from which no entry survives validation (VALIDATION_ERROR).
func (p *Parser) Parse(data []byte) ([]Entry, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, entity.NewPipelineError(entity.KindParseError, "feed.Parse", err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	dropped := 0
	for _, item := range parsed.Items {
		entry, ok := toEntry(item)
		if !ok {
			dropped++
			slog.Debug("feed entry dropped",
				slog.String("feed_title", parsed.Title),
				slog.String("item_title", item.Title),
				slog.String("item_link", item.Link))
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, entity.NewPipelineError(entity.KindValidationError, "feed.Parse",
			fmt.Errorf("no valid entries (%d items, %d dropped)", len(parsed.Items), dropped))
	}

	return entries, nil
}

// toEntry normalizes one feed item. Defaults are applied first (missing
// title becomes UNKNOWN, missing link falls back to the GUID), then the
// link is canonicalized and validated. ok is false when the item cannot
// name a fetchable article URL.
func toEntry(item *gofeed.Item) (Entry, bool) {
	title := text.CleanString(item.Title)
	if title == "" {
		title = unknownField
	}

	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		link = unknownField
	}
	link = text.CleanURL(link)

	if !fetchableURL(link) {
		return Entry{}, false
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed
	}

	return Entry{Title: title, Link: link, PublishedAt: published}, true
}

// fetchableURL reports whether link is an absolute http(s) URL.
func fetchableURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}
