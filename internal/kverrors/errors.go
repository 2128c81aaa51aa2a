// Package kverrors defines the structured error kinds shared by the
// storage engines, the server, and the client.
package kverrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on category without
// string-matching messages.
type Kind string

const (
	// KeyNotFound is returned by Remove when the key is absent. Get
	// returns it for neither success path: a missing key on Get is a
	// value-level result (found=false), not an error.
	KeyNotFound Kind = "key_not_found"

	// UnexpectedCommandType indicates the index pointed at a log
	// record that was not a Set — a consistency bug or corrupted log.
	UnexpectedCommandType Kind = "unexpected_command_type"

	// UnexpectedConfig indicates the engine-selection sidecar does not
	// match the engine the caller asked for.
	UnexpectedConfig Kind = "unexpected_config"

	// IO wraps a filesystem or socket failure.
	IO Kind = "io"

	// Serialization wraps a malformed wire or log record.
	Serialization Kind = "serialization"

	// StringError is a catch-all carrying only a message.
	StringError Kind = "string_error"
)

// Error is the error type returned by engine, protocol, and handshake
// operations. It carries a Kind for programmatic dispatch plus a
// human-readable message, and wraps an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, preserving cause for
// errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ErrKeyNotFound is the canonical "Key not found" error; clients print
// its message verbatim, so the text is part of the wire contract.
var ErrKeyNotFound = New(KeyNotFound, "Key not found")

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IOErr wraps err as an IO-kind Error.
func IOErr(message string, cause error) *Error {
	return Wrap(IO, message, cause)
}

// Sered wraps err as a Serialization-kind Error.
func Sered(message string, cause error) *Error {
	return Wrap(Serialization, message, cause)
}
