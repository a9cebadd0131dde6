package entity

import (
	"fmt"
	"strings"
)

// Completeness grades how much of the underlying event the extracted text
// covers.
type Completeness string

const (
	CompletenessComplete       Completeness = "COMPLETE"
	CompletenessPartialUseful  Completeness = "PARTIAL_USEFUL"
	CompletenessPartialUseless Completeness = "PARTIAL_USELESS"
)

// Valid reports whether c is a known completeness grade.
func (c Completeness) Valid() bool {
	switch c {
	case CompletenessComplete, CompletenessPartialUseful, CompletenessPartialUseless:
		return true
	}
	return false
}

// ContentQuality grades the editorial quality of the extracted text.
type ContentQuality string

const (
	QualityOK         ContentQuality = "OK"
	QualityLowQuality ContentQuality = "LOW_QUALITY"
	QualityJunk       ContentQuality = "JUNK"
)

// Valid reports whether q is a known quality grade.
func (q ContentQuality) Valid() bool {
	switch q {
	case QualityOK, QualityLowQuality, QualityJunk:
		return true
	}
	return false
}

// ArticleAnalysis is the structured output of the LLM analysis step.
// Field names and JSON tags match the schema the model is instructed to
// produce; the object is parsed strictly and validated before use.
//
// The list fields may legitimately be empty when the article is graded
// JUNK or PARTIAL_USELESS.
type ArticleAnalysis struct {
	// Language is the ISO 639-1 code of the article body.
	Language string `json:"language"`

	// PrimaryLocation is an ISO 3166-1 alpha-3 country code, or one of
	// the generic markers GLOBAL / N/A when no single country dominates.
	PrimaryLocation string `json:"primary_location"`

	Completeness   Completeness   `json:"completeness"`
	ContentQuality ContentQuality `json:"content_quality"`

	EventSummaryPoints []string `json:"event_summary_points"`
	ThematicKeywords   []string `json:"thematic_keywords"`
	TopicTags          []string `json:"topic_tags"`
	KeyEntities        []string `json:"key_entities"`
	ContentFocus       []string `json:"content_focus"`
}

// Validate checks the analysis against its schema. Violations are treated
// upstream as malformed model output and retried until attempts run out.
func (a *ArticleAnalysis) Validate() error {
	if a == nil {
		return fmt.Errorf("analysis is nil")
	}

	lang := strings.TrimSpace(a.Language)
	if len(lang) != 2 {
		return &ValidationError{Field: "language", Message: fmt.Sprintf("expected ISO 639-1 code, got %q", a.Language)}
	}

	if strings.TrimSpace(a.PrimaryLocation) == "" {
		return &ValidationError{Field: "primary_location", Message: "primary location is required"}
	}

	if !a.Completeness.Valid() {
		return &ValidationError{Field: "completeness", Message: fmt.Sprintf("unknown grade %q", a.Completeness)}
	}

	if !a.ContentQuality.Valid() {
		return &ValidationError{Field: "content_quality", Message: fmt.Sprintf("unknown grade %q", a.ContentQuality)}
	}

	return nil
}
