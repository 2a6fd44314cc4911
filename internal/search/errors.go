package search

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies an unrecoverable search failure
type Kind int

const (
	// KindProviderUnavailable: retries exhausted or the provider answered with an unusable body
	KindProviderUnavailable Kind = iota + 1
	// KindRateLimited: retries exhausted while the provider kept answering 429
	KindRateLimited
	// KindInvalidQuery: the query was rejected locally or by the provider (4xx); never retried
	KindInvalidQuery
)

func (k Kind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidQuery:
		return "invalid_query"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrProviderUnavailable = errors.New("search provider unavailable")
	ErrRateLimited         = errors.New("search provider rate limited")
	ErrInvalidQuery        = errors.New("invalid search query")
)

// Error is returned by Client.Search when no results can be produced
type Error struct {
	Kind     Kind
	Provider string
	Query    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("search")
	if e.Provider != "" {
		b.WriteString(" (" + e.Provider + ")")
	}
	b.WriteString(": " + e.Kind.String())
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels. A rate-limited failure also counts as the provider being unavailable.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrProviderUnavailable:
		return e.Kind == KindProviderUnavailable || e.Kind == KindRateLimited
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrInvalidQuery:
		return e.Kind == KindInvalidQuery
	}
	return false
}

// StatusError is a non-2xx answer from a provider
type StatusError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration // Provider hint, zero if absent
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
}

// Transient reports whether the status is worth retrying
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// DecodeError is a 2xx answer whose body could not be decoded
type DecodeError struct {
	Provider string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RequestError is a request that could not be built locally; sending it again cannot help
type RequestError struct {
	Provider string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// retryAfterHint reads Retry-After (seconds or HTTP date), falling back to
// the smallest X-RateLimit-Reset window. Zero means no hint.
func retryAfterHint(h http.Header, now time.Time) time.Duration {
	if raw := strings.TrimSpace(h.Get("Retry-After")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(raw); err == nil && at.After(now) {
			return at.Sub(now)
		}
	}

	minReset := -1
	for _, part := range strings.Split(h.Get("X-RateLimit-Reset"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		if minReset < 0 || n < minReset {
			minReset = n
		}
	}
	if minReset > 0 {
		return time.Duration(minReset) * time.Second
	}
	return 0
}
