package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an operation failure for callers and transports.
type ErrorKind string

// Error kinds. Every failed operation carries exactly one.
const (
	KindUnauthorized    ErrorKind = "Unauthorized"
	KindValidation      ErrorKind = "Validation"
	KindConflict        ErrorKind = "Conflict"
	KindNotFound        ErrorKind = "NotFound"
	KindInvalidState    ErrorKind = "InvalidState"
	KindThresholdNotMet ErrorKind = "ThresholdNotMet"
	KindPaused          ErrorKind = "Paused"
	KindExternalFetch   ErrorKind = "ExternalFetchFailure"
)

// Error is a classified operation failure with a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is matches any *Error sentinel of the same kind with no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrThresholdNotMet = &Error{Kind: KindThresholdNotMet}
	ErrPaused          = &Error{Kind: KindPaused}
	ErrExternalFetch   = &Error{Kind: KindExternalFetch}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(format string, args ...any) error {
	return newError(KindUnauthorized, format, args...)
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// InvalidState returns a KindInvalidState error.
func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// ThresholdNotMet returns a KindThresholdNotMet error.
func ThresholdNotMet(format string, args ...any) error {
	return newError(KindThresholdNotMet, format, args...)
}

// Paused returns a KindPaused error.
func Paused(format string, args ...any) error {
	return newError(KindPaused, format, args...)
}

// ExternalFetch returns a KindExternalFetch error.
func ExternalFetch(format string, args ...any) error {
	return newError(KindExternalFetch, format, args...)
}

const parsePrefix = "parse error: "

// ParseFailure is an ExternalFetch error raised while decoding a provider payload.
func ParseFailure(format string, args ...any) error {
	return newError(KindExternalFetch, parsePrefix+format, args...)
}

// IsParseFailure reports whether err came from ParseFailure. Retrying such a
// payload cannot succeed.
func IsParseFailure(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindExternalFetch && strings.HasPrefix(e.Msg, parsePrefix)
}

// KindOf extracts the kind of err, or "" if err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
