package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMissingParameter ErrorKind = "MissingParameter"
	KindInvalidParameter ErrorKind = "InvalidParameter"
	KindIOError          ErrorKind = "IOError"
	KindExtractionError  ErrorKind = "ExtractionError"
	KindNoPlayableStream ErrorKind = "NoPlayableStream"
	KindCancelled        ErrorKind = "Cancelled"
	KindEngineError      ErrorKind = "EngineError"
	KindNoActivePlayback ErrorKind = "NoActivePlayback"
	KindTransportError   ErrorKind = "TransportError"
)

// Error is the boundary error shape: every failure reported to a caller is
// one of these. Errors compare equal under errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Message: err.Error(), Err: errors.Unwrap(err)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrMissingParameter = &Error{Kind: KindMissingParameter}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrIO               = &Error{Kind: KindIOError}
	ErrExtraction       = &Error{Kind: KindExtractionError}
	ErrNoPlayableStream = &Error{Kind: KindNoPlayableStream}
	ErrCancelled        = &Error{Kind: KindCancelled}
	ErrEngine           = &Error{Kind: KindEngineError}
	ErrNoActivePlayback = &Error{Kind: KindNoActivePlayback}
	ErrTransport        = &Error{Kind: KindTransportError}
)

// KindOf extracts the error kind, or "" for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError converts any error to the boundary shape, using fallback as the
// kind for errors outside the taxonomy.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return WrapError(fallback, err)
}
