package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by all pipeline components. Transient errors are
// eligible for retry with backoff; fatal errors are surfaced immediately.
var (
	// ErrMalformedRecord marks a transaction that fails validation. Local:
	// the record is skipped and logged, ingestion continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInputTooLong marks text exceeding the embedding model's input
	// limit. Callers truncate or reject before embedding.
	ErrInputTooLong = errors.New("input too long")

	// ErrServiceUnavailable is a transient upstream failure (5xx, transport
	// error, timeout).
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimited is a transient rate-limit rejection. Use AsRateLimit to
	// recover a server-provided retry hint.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthenticationFailed is fatal and never retried.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrDimensionMismatch marks a vector whose length differs from the
	// index's established dimension. Fatal.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelMismatch marks a query embedder that differs from the model
	// the index was populated with. Fatal.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrUpstreamUnavailable is surfaced once a transient failure has
	// exhausted its retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrRetrievalFailed wraps vector-index failures during a query.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrContentFiltered marks a generative response blocked by the
	// provider's content filter.
	ErrContentFiltered = errors.New("content filtered")

	// ErrIndexEmpty means the vector index holds no entries; ingestion has
	// to run before questions can be answered.
	ErrIndexEmpty = errors.New("vector index is empty")
)

// RateLimitError carries the server's retry hint, when one was provided.
// It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Is reports a match against ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// AsRateLimit extracts a RateLimitError from err, if present.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimited)
}
