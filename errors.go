package llmx

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrKindTransport   ErrorKind = "transport"
	ErrKindRateLimit   ErrorKind = "rate_limit"
	ErrKindAuth        ErrorKind = "auth"
	ErrKindBadRequest  ErrorKind = "bad_request"
	ErrKindNotFound    ErrorKind = "not_found"
	ErrKindServer      ErrorKind = "server"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindCanceled    ErrorKind = "canceled"
	ErrKindParse       ErrorKind = "parse"
	ErrKindStreamEarly ErrorKind = "stream_terminated"
	ErrKindUnknown     ErrorKind = "unknown"
)

// Error is a provider-agnostic error container.
//
// It is designed for enterprise use: stable classification, raw payload
// access, and retry-related hints. Provider adapters construct one for every
// vendor failure; nothing vendor-shaped escapes an adapter.
type Error struct {
	Provider string
	Kind     ErrorKind

	HTTPStatus   int
	ProviderCode string
	Message      string

	Retryable bool

	// RetryAfter is a vendor-provided backoff hint (Retry-After and similar).
	// Zero when the vendor gave none.
	RetryAfter time.Duration

	// Raw is an optional raw error payload (e.g. the HTTP response body).
	Raw []byte

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llmx %s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("llmx: %s", msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is classified as safe to retry.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
