package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error kinds. Every error a provider returns matches exactly one of the
// first three with errors.Is.
var (
	// ErrConnection indicates a dial, handshake or request failure before
	// any response was received.
	ErrConnection = errors.New("connection failed")

	// ErrTransport indicates the socket or HTTP exchange failed after it
	// was established, including error statuses and mid-stream closes.
	ErrTransport = errors.New("transport failed")

	// ErrProtocol indicates a malformed or error-bearing frame. Never retried.
	ErrProtocol = errors.New("protocol violation")

	// ErrRetryExhausted indicates the retry wrapper gave up.
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrQueueOverflow indicates the consumer fell too far behind a
	// WebSocket stream and its frame queue hit the configured cap.
	ErrQueueOverflow = errors.New("frame queue overflow")

	// ErrAllProviders indicates all providers in the chain have been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured for the requested role.
	ErrNoProvider = errors.New("no provider configured")
)

// Error is the error type providers return. It matches its Kind and its
// cause with errors.Is; a 429 status additionally matches ErrRateLimit.
type Error struct {
	Kind       error
	Backend    string
	StatusCode int
	// RetryAfter is the server's retry hint, zero when absent.
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.StatusCode == http.StatusTooManyRequests {
		errs = append(errs, ErrRateLimit)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ConnectionError returns an ErrConnection error for backend.
func ConnectionError(backend string, err error) *Error {
	return &Error{Kind: ErrConnection, Backend: backend, Err: err}
}

// TransportError returns an ErrTransport error for backend.
func TransportError(backend, msg string, err error) *Error {
	return &Error{Kind: ErrTransport, Backend: backend, Message: msg, Err: err}
}

// ProtocolError returns an ErrProtocol error for backend.
func ProtocolError(backend, msg string, err error) *Error {
	return &Error{Kind: ErrProtocol, Backend: backend, Message: msg, Err: err}
}

// StatusError returns an ErrTransport error for an HTTP error status.
func StatusError(backend string, status int, retryAfter time.Duration, msg string) *Error {
	return &Error{
		Kind:       ErrTransport,
		Backend:    backend,
		StatusCode: status,
		RetryAfter: retryAfter,
		Message:    msg,
	}
}

// RetryError is returned when the retry wrapper runs out of attempts.
type RetryError struct {
	Backend  string
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	prefix := ""
	if e.Backend != "" {
		prefix = e.Backend + ": "
	}
	return fmt.Sprintf("%sgiving up after %d attempts: %v", prefix, e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// IsRetryable reports whether the error is transient and the request
// can be retried with a different provider or after a delay.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrProtocol) {
		return false
	}
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrRetryExhausted)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as
// an HTTP date. It returns zero when v is empty or unparseable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(0, secs)) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(0, t.Sub(now))
	}
	return 0
}
