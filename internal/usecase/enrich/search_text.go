package enrich

import (
	"strings"

	"newsriver/internal/domain/entity"
)

// genericLocations are primary_location markers that carry no geographic
// signal and are left out of the search text.
var genericLocations = map[string]struct{}{
	"GLOBAL": {},
	"WORLD":  {},
	"NONE":   {},
	"N/A":    {},
}

// BuildSearchText flattens an article's title and analysis into the single
// string fed to the embedding model.
//
// Title, location, summary points, entities, keywords, tags, and focus are
// concatenated in that order. Every element is trimmed and empties are
// dropped; summary points are normalized to end with a period; generic
// locations (GLOBAL, WORLD, NONE, N/A) are discarded. Parts are joined
// with ". " unless the preceding part already ends with a period, in which
// case a single space suffices. The result ends with a period exactly when
// it is non-empty.
func BuildSearchText(title string, analysis *entity.ArticleAnalysis) string {
	parts := make([]string, 0, 7)
	add := func(part string) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	add(title)

	if analysis != nil {
		if loc := strings.TrimSpace(analysis.PrimaryLocation); loc != "" {
			if _, generic := genericLocations[strings.ToUpper(loc)]; !generic {
				parts = append(parts, loc)
			}
		}

		points := make([]string, 0, len(analysis.EventSummaryPoints))
		for _, point := range analysis.EventSummaryPoints {
			point = strings.TrimSpace(point)
			if point == "" {
				continue
			}
			if !strings.HasSuffix(point, ".") {
				point += "."
			}
			points = append(points, point)
		}
		add(strings.Join(points, " "))

		add(joinKeywordList(analysis.KeyEntities))
		add(joinKeywordList(analysis.ThematicKeywords))
		add(joinKeywordList(analysis.TopicTags))
		add(joinKeywordList(analysis.ContentFocus))
	}

	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			if strings.HasSuffix(parts[i-1], ".") {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(part)
	}

	text := b.String()
	if text != "" && !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}

// joinKeywordList trims and joins list elements with commas, dropping
// empties.
func joinKeywordList(list []string) string {
	cleaned := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return strings.Join(cleaned, ", ")
}
