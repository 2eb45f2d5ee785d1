// Package apperr classifies errors by who can fix them: the caller
// (NotFound, Validation), the operator (Internal), or a collaborator that
// failed or timed out (Upstream).
package apperr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindInternal
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindInternal:
		return "internal"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind     Kind
	Message  string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Cause() error { return e.Err }

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// NotFoundResource is NotFound with the name of the missing resource kept for
// response details.
func NotFoundResource(msg, resource string) error {
	return &Error{Kind: KindNotFound, Message: msg, Resource: resource}
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Internal(msg string) error {
	return &Error{Kind: KindInternal, Message: msg}
}

func Internalf(format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a ledger gateway or proof server failure. An error that is
// already classified keeps its kind and only gains context.
func Upstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return errors.Wrap(err, msg)
	}
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

func Upstreamf(err error, format string, args ...any) error {
	return Upstream(err, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsInternal(err error) bool   { return KindOf(err) == KindInternal }
func IsUpstream(err error) bool   { return KindOf(err) == KindUpstream }

// Resource returns the resource name attached by NotFoundResource, if any.
func Resource(err error) string {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Resource
	}
	return ""
}
