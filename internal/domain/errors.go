package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable machine-readable class of a fetch failure.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindTimeout       Kind = "TIMEOUT"
	KindProviderError Kind = "PROVIDER_ERROR"
	KindParseError    Kind = "PARSE_ERROR"
)

// Error carries a Kind alongside a human readable message and the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// Transient marks provider failures worth one more submit attempt.
	Transient bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind so callers can use errors.Is with
// the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrRateLimit     = &Error{Kind: KindRateLimit}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrProviderError = &Error{Kind: KindProviderError}
	ErrParse         = &Error{Kind: KindParseError}
)

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimit, Message: msg}
}

func Timeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

func ProviderError(msg string, err error) *Error {
	return &Error{Kind: KindProviderError, Message: msg, Err: err}
}

// TransientProviderError is a provider failure that may succeed on retry
// (transport errors, 429, 5xx).
func TransientProviderError(msg string, err error) *Error {
	return &Error{Kind: KindProviderError, Message: msg, Err: err, Transient: true}
}

func ParseError(msg string) *Error {
	return &Error{Kind: KindParseError, Message: msg}
}

// KindOf extracts the Kind from err. Context deadlines map to TIMEOUT and
// anything unclassified is reported as PROVIDER_ERROR.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindProviderError
}

// IsTransient reports whether err is a provider failure flagged as retryable.
func IsTransient(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == KindProviderError && de.Transient
	}
	return false
}
