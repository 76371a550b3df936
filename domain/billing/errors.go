package billing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure of a billing operation.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindValidation  ErrorKind = "validation"
	KindDeclined    ErrorKind = "declined"
	KindTransient   ErrorKind = "transient"
	KindAuthFailure ErrorKind = "auth_failure"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrDeclined    = &Error{Kind: KindDeclined}
	ErrTransient   = &Error{Kind: KindTransient}
	ErrAuthFailure = &Error{Kind: KindAuthFailure}
)

// ErrSubscriptionCancelled is wrapped by NotFound errors for subscriptions
// that already reached their terminal state.
var ErrSubscriptionCancelled = errors.New("subscription already cancelled")

// ErrSequenceConsumed is returned when a ledger sequence is ranged twice.
var ErrSequenceConsumed = errors.New("ledger sequence already consumed")

// Error is a classified billing error.
type Error struct {
	Kind        ErrorKind
	Op          string
	Msg         string
	Code        string // processor error code, e.g. "resource_missing"
	DeclineCode string
	RequestID   string
	HTTPStatus  int
	Err         error
}

// NewError creates a classified error without an underlying cause.
func NewError(kind ErrorKind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// WrapError creates a classified error around cause.
func WrapError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	switch {
	case e.Msg != "":
		b.WriteString(": ")
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrDeclined) works
// regardless of op or code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether err may be retried with backoff. Only transient
// failures qualify; creation-of-effect operations additionally need an
// idempotency key, which is the caller's responsibility.
func Retryable(err error) bool {
	return IsKind(err, KindTransient)
}

// Validationf builds a validation error for input rejected before any remote call.
func Validationf(op, format string, args ...any) *Error {
	return NewError(KindValidation, op, fmt.Sprintf(format, args...))
}
