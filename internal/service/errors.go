// Package service holds the application logic behind the HTTP handlers:
// account lifecycle, settings, the net operation state machine, and report
// assembly. Failures are reported as *Error values that wrap one of the
// category sentinels below.
package service

import (
	"errors"
	"strings"
)

// Error categories. Handlers map each one to a stable HTTP status.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("invalid credentials")
	ErrPendingApproval = errors.New("account pending approval")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPrecondition    = errors.New("precondition failed")
	ErrUpstream        = errors.New("upstream service unavailable")
)

// Error is a categorized failure with a message safe to show to clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error { return &Error{Kind: kind, Message: msg} }

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a single-field validation error.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// Message returns the client-facing text for err. Unclassified errors get a
// generic message.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	for _, kind := range []error{ErrValidation, ErrUnauthenticated, ErrPendingApproval, ErrForbidden, ErrNotFound, ErrConflict, ErrPrecondition, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
