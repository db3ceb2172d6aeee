// Package stoerr defines the error taxonomy shared by the remote store
// client, the cache, the write-through repository and the upload engine.
//
// Remote-store failures are translated into this taxonomy exactly once, at
// the remote store client boundary; everything above matches on Kind and
// never re-interprets provider errors.
package stoerr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a storage error.
type Kind int

// Supported error kinds.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindRangeNotSatisfiable
	KindRemoteUnavailable
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindInvalidArgument:
		return "invalid argument"
	case KindRangeNotSatisfiable:
		return "range not satisfiable"
	case KindRemoteUnavailable:
		return "remote unavailable"
	default:
		return "unknown"
	}
}

// Error is a storage error carrying a kind, an HTTP-like status code and a
// reference to the resource the operation was addressing.
type Error struct {
	Kind     Kind
	Code     int
	Resource string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = e.Message
	}

	if e.Resource == "" {
		return msg
	}

	return fmt.Sprintf("%v: %v", e.Resource, msg)
}

// Unwrap supports errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound returns an error indicating that the given resource does not exist.
func NotFound(resource string) error {
	return &Error{Kind: KindNotFound, Code: http.StatusNotFound, Resource: resource}
}

// AlreadyExists returns an error indicating a create collided with an
// existing resource.
func AlreadyExists(resource string) error {
	return &Error{Kind: KindAlreadyExists, Code: http.StatusConflict, Resource: resource}
}

// InvalidArgument returns an error indicating a malformed argument.
func InvalidArgument(resource, message string) error {
	return &Error{Kind: KindInvalidArgument, Code: http.StatusBadRequest, Resource: resource, Message: message}
}

// RangeNotSatisfiable returns an error indicating a byte-range request
// exceeded the bounds of the target blob.
func RangeNotSatisfiable(resource string) error {
	return &Error{Kind: KindRangeNotSatisfiable, Code: http.StatusRequestedRangeNotSatisfiable, Resource: resource}
}

// RemoteUnavailable wraps an unclassified remote failure, preserving the
// remote's status code when known, defaulting to 503.
func RemoteUnavailable(resource string, code int, cause error) error {
	if code == 0 {
		code = http.StatusServiceUnavailable
	}

	msg := "remote store failure"
	if cause != nil {
		msg = cause.Error()
	}

	return &Error{Kind: KindRemoteUnavailable, Code: code, Resource: resource, Message: msg, Cause: cause}
}

// KindOf returns the Kind of err, or KindUnknown when err does not carry one.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// StatusCode returns the HTTP-like status code carried by err, or 500 when
// err carries none.
func StatusCode(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}

	return http.StatusInternalServerError
}
