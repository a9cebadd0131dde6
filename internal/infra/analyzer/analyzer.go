// Package analyzer turns extracted article text into the structured
// analysis object the rest of the pipeline consumes. It includes adapters
// for Claude (Anthropic) and OpenAI APIs with reliability patterns.
// Both adapters request a single JSON object at temperature zero and
// validate the model output against the analysis schema before returning
// it; responses that fail the schema are surfaced as retryable errors so
// a fresh completion gets another chance within the attempt budget.
package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"newsriver/internal/domain/entity"
	"newsriver/internal/utils/text"
)

// analysisSchemaJSON is the response contract embedded in every prompt.
// Field names and grade vocabularies must stay aligned with
// entity.ArticleAnalysis, which is what the response is decoded into.
const analysisSchemaJSON = `{
  "language": "<ISO 639-1 code of the article body, e.g. \"en\">",
  "primary_location": "<ISO 3166-1 alpha-3 code of the country the coverage centres on, or \"GLOBAL\" or \"N/A\">",
  "completeness": "<COMPLETE | PARTIAL_USEFUL | PARTIAL_USELESS>",
  "content_quality": "<OK | LOW_QUALITY | JUNK>",
  "event_summary_points": ["<short declarative sentences covering the concrete events reported>"],
  "thematic_keywords": ["<broader themes and subject areas of the coverage>"],
  "topic_tags": ["<short topical tags>"],
  "key_entities": ["<people, organisations and places named in the text>"],
  "content_focus": ["<what the coverage is about, e.g. politics, security, markets>"]
}`

// buildAnalysisPrompt constructs the analysis prompt shared by all
// providers. The article body is expected to be truncated by the caller
// before it gets here.
func buildAnalysisPrompt(title, content string) string {
	return fmt.Sprintf(`Analyze the news article below and respond with a single JSON object and nothing else. No prose, no code fences. The object must match this schema exactly:

%s

Grade completeness by how much of the underlying event the text covers, and content_quality by how editorially usable the text is. When content_quality is "JUNK" or completeness is "PARTIAL_USELESS" the array fields may be empty.

Title: %s

%s`, analysisSchemaJSON, title, content)
}

// parseAnalysis decodes a model response into a validated ArticleAnalysis.
// Models occasionally wrap the object in code fences or lead-in prose
// despite instructions, so the parser takes the outermost brace pair.
// Every failure is tagged entity.KindValidationError: a fresh completion
// may well conform, so the caller's retry budget applies.
func parseAnalysis(raw string) (*entity.ArticleAnalysis, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.parse",
			fmt.Errorf("no JSON object in model output"))
	}

	var analysis entity.ArticleAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.parse",
			fmt.Errorf("decode analysis: %w", err))
	}

	if err := analysis.Validate(); err != nil {
		return nil, entity.NewPipelineError(entity.KindValidationError, "analyzer.parse", err)
	}

	return &analysis, nil
}

// truncateContent caps the article body sent to the model. The cut is on
// rune boundaries so multi-byte text survives intact.
func truncateContent(content string, maxRunes int) (string, bool) {
	if text.CountRunes(content) <= maxRunes {
		return content, false
	}
	runes := []rune(content)
	return string(runes[:maxRunes]) + "...\n(content truncated)", true
}
