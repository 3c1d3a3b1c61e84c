// Package apperrors defines the error taxonomy shared by every pipeline
// stage, plus the handler that decides retry vs surface.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed classification set for query pipeline errors.
type Kind string

const (
	KindSyntax     Kind = "syntax"
	KindSemantic   Kind = "semantic"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindAmbiguous  Kind = "ambiguous"
	KindTimeout    Kind = "timeout"
	KindRateLimit  Kind = "rate_limit"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// Error is a classified pipeline error. Stages never swallow errors; each
// attaches its stage name and re-raises, so the orchestrator sees the full
// path the failure took.
type Error struct {
	Kind           Kind
	Message        string
	Stage          string
	SQL            string
	Question       string
	Retryable      bool
	Cancelled      bool
	BytesProcessed int64
	Cause          error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Kind))
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool { return e.Retryable }

// WithStage annotates the error with the pipeline stage that saw it. The
// first stage to set it wins; later stages re-raise unchanged.
func (e *Error) WithStage(stage string) *Error {
	if e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// New creates a classified error with the default retryability for its kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: defaultRetryable(kind)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: defaultRetryable(kind), Cause: cause}
}

func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindPermission, KindNotFound, KindValidation, KindAmbiguous:
		return false
	default:
		return true
	}
}

// KindOf extracts the Kind from any error, classifying raw errors on the way.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Classify(err).Kind
}

// AsError returns err as a classified *Error, classifying it if needed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Classify(err)
}
