// Package apperr carries the error taxonomy shared by every component boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller is expected to recover from it.
type Kind string

const (
	// KindValidation marks bad caller input, recoverable by re-prompting.
	KindValidation Kind = "validation"
	// KindAuth marks a missing or invalid session.
	KindAuth Kind = "auth"
	// KindNotFound marks a reference to a document that does not exist.
	KindNotFound Kind = "not_found"
	// KindServiceUnavailable marks an upstream identity, store or generation service that is down or unconfigured.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindUpstream marks a failed text-generation call.
	KindUpstream Kind = "upstream"
	// KindInvalidInput marks a structurally invalid request payload.
	KindInvalidInput Kind = "invalid_input"
	// KindUnknown is used for errors that were never classified.
	KindUnknown Kind = "unknown"
)

// Error wraps a cause with the operation that produced it and its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New constructs an *Error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the "operation.kind" code exposed to clients and logs.
func (e *Error) Code() string {
	return fmt.Sprintf("%s.%s", e.Op, e.Kind)
}

// KindOf reports the Kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func Validation(op string, cause error) error {
	return New(KindValidation, op, cause)
}

func Auth(op string, cause error) error {
	return New(KindAuth, op, cause)
}

func NotFound(op string, cause error) error {
	return New(KindNotFound, op, cause)
}

func Unavailable(op string, cause error) error {
	return New(KindServiceUnavailable, op, cause)
}

func Upstream(op string, cause error) error {
	return New(KindUpstream, op, cause)
}

func InvalidInput(op string, cause error) error {
	return New(KindInvalidInput, op, cause)
}
