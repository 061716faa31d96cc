// Package apperr defines the error taxonomy shared by lookout components.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrNetwork           = errors.New("network error")
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrStale             = errors.New("stale generation")
	ErrUnsupported       = errors.New("unsupported")
)

// ValidationError is a local, field-scoped failure. It never reaches the network.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Is reports ErrValidation so callers can match with errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NetworkError wraps a timeout, connection failure, or non-success response.
// Message carries the backend's structured message when one was returned.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports ErrNetwork so callers can match with errors.Is.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// UserMessage returns the text to show the user: the backend message when
// available, else a generic fallback.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Message != "" {
		return ne.Message
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return "Request failed. Please try again."
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	}
	return "Something went wrong. Please try again."
}
