package model

import (
	"fmt"
	"time"
)

// ErrorKind is the neutral error taxonomy of the completion engine.
type ErrorKind string

const (
	ErrInvalidAPIKey          ErrorKind = "invalidAPIKey"
	ErrRateLimited            ErrorKind = "rateLimited"
	ErrContentFiltered        ErrorKind = "contentFiltered"
	ErrModelNotFound          ErrorKind = "modelNotFound"
	ErrInvalidRequest         ErrorKind = "invalidRequest"
	ErrContextLengthExceeded  ErrorKind = "contextLengthExceeded"
	ErrCapabilityNotSupported ErrorKind = "capabilityNotSupported"
	ErrNetworkError           ErrorKind = "networkError"
	ErrDecodingError          ErrorKind = "decodingError"
	ErrServerError            ErrorKind = "serverError"
)

// ProviderError is the structured error every adapter boundary maps
// provider-specific failures into exactly once; it then propagates
// unchanged through the rest of the stack.
type ProviderError struct {
	kind       ErrorKind
	detail     string
	retryAfter *time.Duration
	statusCode int
	cause      error
}

// NewProviderError constructs a ProviderError of the given kind.
func NewProviderError(kind ErrorKind, detail string, cause error) *ProviderError {
	return &ProviderError{kind: kind, detail: detail, cause: cause}
}

// WithRetryAfter attaches a parsed Retry-After duration.
func (e *ProviderError) WithRetryAfter(d time.Duration) *ProviderError {
	e.retryAfter = &d
	return e
}

// WithStatusCode attaches the originating HTTP status code.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.statusCode = code
	return e
}

// Kind reports the error taxonomy member.
func (e *ProviderError) Kind() ErrorKind { return e.kind }

// Detail reports the human-readable detail string.
func (e *ProviderError) Detail() string { return e.detail }

// RetryAfter reports the server-advertised retry delay, if any.
func (e *ProviderError) RetryAfter() *time.Duration { return e.retryAfter }

// StatusCode reports the originating HTTP status code, or 0 if not
// transport-originated.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Retryable reports whether the retry policy should treat this as a
// transient failure: 408, 409, 429, and 500-599.
func (e *ProviderError) Retryable() bool {
	switch e.statusCode {
	case 408, 409, 429:
		return true
	}
	return e.statusCode >= 500 && e.statusCode <= 599
}

func (e *ProviderError) Error() string {
	if e.detail == "" {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError extracts a *ProviderError from err via errors.As-style
// type assertion, for call sites that do not want to import "errors" just
// for this.
func AsProviderError(err error) (*ProviderError, bool) {
	pe, ok := err.(*ProviderError)
	return pe, ok
}

// Cancelled is a first-class error kind distinct from the rest of the
// taxonomy; a cancelled operation must never be conflated with, or
// swallowed by, a retry.
type Cancelled struct {
	Detail string
}

func (c *Cancelled) Error() string { return fmt.Sprintf("cancelled: %s", c.Detail) }
