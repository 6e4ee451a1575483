// Package apperr classifies failures so the HTTP layer can map them to a status code.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the failure class of an error.
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	Forbidden
	NotFound
	Conflict
)

// Error carries a client-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(Status(e.Kind))
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind to err. The message defaults to err's text.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Invalid(msg string) error      { return New(Validation, msg) }
func Unauthorized(msg string) error { return New(Unauthenticated, msg) }
func Denied(msg string) error       { return New(Forbidden, msg) }
func Missing(msg string) error      { return New(NotFound, msg) }
func Duplicate(msg string) error    { return New(Conflict, msg) }

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Status maps a kind to its HTTP status. Conflicts are reported as validation failures.
func Status(k Kind) int {
	switch k {
	case Validation, Conflict:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
