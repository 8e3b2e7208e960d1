// Package clierr defines the error taxonomy shared by the request engine,
// the parameter and path helpers, and the command interpreter.
//
// Every failure that can reach the user is an *Error carrying a Kind. The
// interpreter is the only place that turns an *Error into text; lower layers
// return them and never print.
package clierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the interpreter can decide how to report it.
type Kind string

const (
	// KindConfiguration covers bad URLs, bad ports, malformed credentials
	// and unknown `set` keys. Fatal to the operation, never to the process.
	KindConfiguration Kind = "configuration"

	// KindConnection means every send attempt failed without a response.
	KindConnection Kind = "connection"

	// KindDecode means a 2xx response claimed JSON but could not be decoded.
	KindDecode Kind = "decode"

	// KindAPI means the server answered and signaled failure, either with
	// its HTTP status or with `result: false` in the envelope.
	KindAPI Kind = "api"

	// KindUsage covers malformed command lines and parameter tokens. A usage
	// error is reported before anything is sent.
	KindUsage Kind = "usage"
)

// Error is a categorized error. Detail optionally holds a diagnostic payload
// (the formatted response body in full-response mode).
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n" + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a diagnostic payload and returns the receiver.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Configuration creates a configuration error.
func Configuration(format string, args ...any) *Error {
	return newError(KindConfiguration, format, args...)
}

// Connection creates a connection-failed error.
func Connection(format string, args ...any) *Error {
	return newError(KindConnection, format, args...)
}

// Decode creates a decode-failed error.
func Decode(format string, args ...any) *Error {
	return newError(KindDecode, format, args...)
}

// API creates an API failure.
func API(format string, args ...any) *Error {
	return newError(KindAPI, format, args...)
}

// Usage creates a usage error.
func Usage(format string, args ...any) *Error {
	return newError(KindUsage, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
