package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors the caller can act on. Anything without a kind is
// an unexpected failure and must not be shown to clients.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindConflict   ErrorKind = "conflict"
	ErrorKindForbidden  ErrorKind = "forbidden"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newError(ErrorKindValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(ErrorKindNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(ErrorKindConflict, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(ErrorKindForbidden, format, args...)
}

// KindOf returns the kind of an expected error. ok is false for unexpected errors.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
