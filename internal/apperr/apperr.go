// Package apperr classifies failures so callers can decide whether to
// recover, retry externally, or report a client error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the class of a failure.
type Kind string

const (
	KindInternal Kind = "internal"

	// KindNotFound: a referenced Query, Retrieval, Evaluation or User is absent.
	KindNotFound Kind = "not_found"

	// KindUpstream: the search API answered with a non-200 status.
	KindUpstream Kind = "upstream_fetch_failure"

	// KindConfiguration: invalid input to a retrieval trigger (bad or future date).
	KindConfiguration Kind = "configuration"

	// KindStorageReadMiss: an expected object-store key is absent.
	KindStorageReadMiss Kind = "storage_read_miss"

	// KindSerialization: a payload could not be encoded or decoded.
	KindSerialization Kind = "serialization"

	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
)

// Error is a classified error. Detail carries extra context such as an
// upstream response body.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err with a formatted message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail sets Detail and returns e.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// NotFound is shorthand for a KindNotFound error naming the missing thing.
func NotFound(what, id string) *Error {
	return New(KindNotFound, "%s %q not found", what, id)
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or KindInternal when none is classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the response status the web layer should send.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
