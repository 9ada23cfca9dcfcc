// Package openai wraps the official OpenAI Go SDK behind the domain's
// Embedder and Generator interfaces, with the pipeline's error taxonomy and
// retry policy applied.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	openaisdk "github.com/openai/openai-go/v3"

	"fuelrag/internal/domain"
)

const (
	defaultMaxRetries = 4
	maxBackoff        = 5 * time.Second
)

// mapError translates SDK and transport failures into the domain taxonomy.
// Timeouts and cancellations count as transient per the retry policy.
func mapError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusUnauthorized || apierr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
		case apierr.StatusCode == http.StatusTooManyRequests:
			return &RateLimitWrap{hint: retryAfter(apierr.Response), cause: err}
		case apierr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Transport-level failure without an HTTP status.
	return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
}

// RateLimitWrap preserves the SDK error while matching the domain's rate
// limit sentinel and carrying the server's retry hint.
type RateLimitWrap struct {
	hint  time.Duration
	cause error
}

func (e *RateLimitWrap) Error() string { return (&domain.RateLimitError{RetryAfter: e.hint}).Error() }
func (e *RateLimitWrap) Unwrap() error { return e.cause }

// As exposes the wrap as a *domain.RateLimitError.
func (e *RateLimitWrap) As(target any) bool {
	if rl, ok := target.(**domain.RateLimitError); ok {
		*rl = &domain.RateLimitError{RetryAfter: e.hint}
		return true
	}
	return false
}

// Is reports a match against ErrRateLimited.
func (e *RateLimitWrap) Is(target error) bool { return target == domain.ErrRateLimited }

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// backoff returns the delay before retry attempt n, doubling from 200ms and
// capped at maxBackoff. A rate-limit hint from the server takes precedence.
func backoff(attempt int, err error) time.Duration {
	if rl, ok := domain.AsRateLimit(err); ok && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	d := 200 * time.Millisecond << attempt
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
