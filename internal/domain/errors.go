package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPersistenceConflict is returned by stores when an active alert for the
	// same city and disaster type already exists.
	ErrPersistenceConflict = errors.New("active alert already exists")

	// ErrInvalidTransition is returned when a status change would leave a
	// terminal state or move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRateLimited is returned by the weather provider on HTTP 429.
	ErrRateLimited = errors.New("weather provider rate limited")

	// ErrAnalysisUnavailable is the generic failure surfaced to callers for
	// unexpected internal errors.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
)

// ValidationError reports missing or malformed required fields.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	if e.Reason == "" {
		return "validation failed: missing " + strings.Join(e.Fields, ", ")
	}
	return fmt.Sprintf("validation failed: %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// InvalidInputError reports raw input that cannot be normalized.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// UpstreamUnavailableError reports a provider timeout or server error.
type UpstreamUnavailableError struct {
	Provider string
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsCallerError reports whether err should be surfaced to the caller as-is
// rather than mapped to ErrAnalysisUnavailable.
func IsCallerError(err error) bool {
	var (
		ve *ValidationError
		ie *InvalidInputError
		nf *NotFoundError
	)
	return errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &nf) ||
		errors.Is(err, ErrInvalidTransition)
}
