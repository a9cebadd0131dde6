package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrPDFContent indicates the target resolved to a PDF document,
	// which the pipeline skips rather than processes
	ErrPDFContent = errors.New("PDF article - cannot process")

	// ErrCorruptState indicates a persisted scraper state failed schema
	// validation and the instance must not act on it
	ErrCorruptState = errors.New("corrupt scraper state")
)

// ErrorKind tags a pipeline failure with its domain-level class so that
// callers dispatch on kind instead of matching message text.
type ErrorKind string

const (
	// KindFetchError covers transport failures and non-2xx responses.
	KindFetchError ErrorKind = "FETCH_ERROR"
	// KindParseError covers documents that are not what they claim to be
	// (non-XML feeds, renderer responses that are not JSON).
	KindParseError ErrorKind = "PARSE_ERROR"
	// KindValidationError covers structurally valid input that fails the
	// schema (no feed entries survive, malformed renderer payload).
	KindValidationError ErrorKind = "VALIDATION_ERROR"
	// KindReadabilityError covers extractor crashes over a DOM.
	KindReadabilityError ErrorKind = "READABILITY_ERROR"
	// KindNoArticleFound covers pages with no usable main content.
	KindNoArticleFound ErrorKind = "NO_ARTICLE_FOUND"
)

// PipelineError is the tagged result every fallible pipeline component
// returns. Op names the operation for logs; Kind drives the caller's
// status decision; Err preserves the cause chain.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error returns "<op>: <kind>: <cause>".
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError builds a tagged pipeline error.
func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err's chain, or "" when err carries
// no pipeline tag.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
