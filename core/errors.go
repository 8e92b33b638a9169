package core

import (
	"errors"
	"fmt"
)

// Kind classifies every error the service reports to a client.
type Kind string

const (
	KindSchema           Kind = "SchemaError"
	KindSchemaMismatch   Kind = "AggregationError::SchemaMismatch"
	KindEmptyAggregation Kind = "AggregationError::EmptyAggregation"
	KindParse            Kind = "ParseError"
	KindNotFound         Kind = "NotFoundError"
	KindOutOfRange       Kind = "IndexError::OutOfRange"
	KindAccess           Kind = "AccessError"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrSchema           = &Error{Kind: KindSchema}
	ErrSchemaMismatch   = &Error{Kind: KindSchemaMismatch}
	ErrEmptyAggregation = &Error{Kind: KindEmptyAggregation}
	ErrParse            = &Error{Kind: KindParse}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrOutOfRange       = &Error{Kind: KindOutOfRange}
	ErrAccess           = &Error{Kind: KindAccess}
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.message())
}

// message is the error text without the kind. A wrapped error of the same
// kind contributes its message only, so the kind is not repeated.
func (e *Error) message() string {
	if e.Err == nil {
		return e.Msg
	}
	cause := e.Err.Error()
	if inner, ok := e.Err.(*Error); ok && inner.Kind == e.Kind {
		cause = inner.message()
	}
	if e.Msg == "" {
		return cause
	}
	return e.Msg + ": " + cause
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a classified error from a format string.
func NewError(kind Kind, tpl string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(tpl, args...)}
}

// WrapError classifies err. The message may be empty.
func WrapError(kind Kind, err error, tpl string, args ...any) *Error {
	msg := ""
	if tpl != "" {
		msg = fmt.Sprintf(tpl, args...)
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human readable part of a classified error without
// the kind prefix.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	return e.message()
}
