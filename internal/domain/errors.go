package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the closed set the rest of the system
// branches on: retry policy, HTTP status mapping, and SSE error framing all
// switch on Kind rather than on error string matching.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindTransient         Kind = "transient"
	KindPermanent         Kind = "permanent"
	KindDependencyFailure Kind = "dependency_failure"
	KindCancelled         Kind = "cancelled"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidKnowledgeBase = errors.New("invalid knowledge base")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrNameTooShort         = errors.New("name too short")
	ErrNameTooLong          = errors.New("name too long")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrContentTooLarge      = errors.New("content exceeds size limit")
	ErrMessageEmpty         = errors.New("message text is empty")
	ErrMessageInjection     = errors.New("message contains suspicious content")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
)

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError classified as KindInvalidInput.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// CoreError attaches a Kind to any wrapped error so callers can branch on
// classification without inspecting message text.
type CoreError struct {
	Kind    Kind
	Op      string
	Wrapped error
}

func (e *CoreError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
}

func (e *CoreError) Unwrap() error { return e.Wrapped }

// Wrap builds a CoreError of the given Kind for operation op.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CoreError{Kind: kind, Op: op, Wrapped: err}
}

// ClassifyKind extracts the Kind from err, defaulting to KindPermanent when
// err carries no CoreError/ValidationError classification.
func ClassifyKind(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindInvalidInput
	}
	return KindPermanent
}

// IsRetryable reports whether err's classification permits an automatic retry.
func IsRetryable(err error) bool {
	return ClassifyKind(err) == KindTransient
}
