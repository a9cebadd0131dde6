package analyzer

import "fmt"

// AnalyzerConfig is a common interface for analyzer configuration.
// Provider implementations should implement this interface to ensure
// consistent validation and configuration behavior.
type AnalyzerConfig interface {
	// GetModel returns the model identifier the provider calls.
	GetModel() string

	// GetMaxContentChars returns the maximum number of article characters
	// (Unicode runes) passed to the model. Longer bodies are truncated.
	GetMaxContentChars() int

	// Validate validates the configuration and returns an error if invalid.
	Validate() error
}

const (
	// minContentChars is the minimum allowed article content limit.
	minContentChars = 1000

	// maxContentChars is the maximum allowed article content limit.
	maxContentChars = 100000
)

// ValidateMaxContentChars validates that the content limit is within the
// valid range (1000-100000). Returns an error with a descriptive message
// if the limit is out of range.
func ValidateMaxContentChars(limit int) error {
	if limit < minContentChars {
		return fmt.Errorf("content limit %d is below minimum %d", limit, minContentChars)
	}
	if limit > maxContentChars {
		return fmt.Errorf("content limit %d exceeds maximum %d", limit, maxContentChars)
	}
	return nil
}
