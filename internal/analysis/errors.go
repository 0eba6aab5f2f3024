package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/lease_go_server/internal/pkg/resilience"
)

// ErrTimeout marks an OCR or completion call that hit its deadline. It is retryable.
var ErrTimeout = errors.New("operation timed out")

// ValidationError rejects a request before any processing happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExtractionError wraps OCR or clause extraction failures.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationReason distinguishes an unreachable completion service from unusable output.
type GenerationReason string

const (
	ReasonUnavailable GenerationReason = "unavailable"
	ReasonMalformed   GenerationReason = "malformed"
)

// GenerationError wraps completion-service failures.
type GenerationError struct {
	Reason GenerationReason
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// WrapTimeout tags deadline errors with ErrTimeout, leaving others untouched.
func WrapTimeout(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// IsRetryable reports whether a failed job caused by err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || resilience.IsTransient(err)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
