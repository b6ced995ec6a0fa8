package domain

import (
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Domain Errors
// Sentinels are matched with errors.Is. The typed errors below carry detail
// for logging and caller mapping and match their sentinel through Is.
// -----------------------------------------------------------------------------

// Gateway and orchestration errors
var (
	ErrConnection      = errors.New("inference backend unavailable")
	ErrMalformedOutput = errors.New("malformed backend output")
	ErrValidation      = errors.New("backend output failed validation")
)

// Progression errors
var (
	ErrVersionConflict = errors.New("version conflict")
	ErrNoMoreHints     = errors.New("no more hints available")
)

// General errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// ConnectionError reports that the backend could not be reached or answered
// with an error status. It is never retried.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%v: %v", ErrConnection, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", ErrConnection, e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// MalformedOutputError reports that no attempt produced parseable content.
type MalformedOutputError struct {
	Attempts int
	Err      error // last parse failure
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrMalformedOutput, e.Attempts, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// ValidationError lists every shape violation found in parsed content.
type ValidationError struct {
	Shape      string // "challenge" or "evaluation"
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Shape, ErrValidation, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidInputError is a caller fault: unknown subject or type, or an
// out-of-range parameter.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidInput, e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// NewInvalidInput builds an InvalidInputError with a formatted reason.
func NewInvalidInput(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
