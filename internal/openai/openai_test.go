package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelrag/internal/domain"
)

func TestBuildUserPrompt(t *testing.T) {
	got := buildUserPrompt("how much diesel?", []string{"sale T1", "sale T2"})
	want := "Question: how much diesel?\n\n" +
		"Transaction records:\n" +
		"- sale T1\n" +
		"- sale T2\n\n" +
		"Answer concisely using only the records above:"
	assert.Equal(t, want, got)
}

func TestRateLimitWrap(t *testing.T) {
	cause := errors.New("429 from upstream")
	err := error(&RateLimitWrap{hint: 3 * time.Second, cause: cause})

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.ErrorIs(t, err, cause)

	rl, ok := domain.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, rl.RetryAfter)
}

func TestBackoff(t *testing.T) {
	base := errors.New("transient")
	assert.Equal(t, 200*time.Millisecond, backoff(0, base))
	assert.Equal(t, 400*time.Millisecond, backoff(1, base))
	assert.Equal(t, 800*time.Millisecond, backoff(2, base))
	// Capped.
	assert.Equal(t, maxBackoff, backoff(10, base))

	// A server hint overrides the schedule.
	hinted := &RateLimitWrap{hint: 9 * time.Second}
	assert.Equal(t, 9*time.Second, backoff(0, hinted))

	// A rate limit without a hint falls back to the schedule.
	unhinted := &RateLimitWrap{}
	assert.Equal(t, 200*time.Millisecond, backoff(0, unhinted))
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, retryAfter(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, retryAfter(resp))

	resp.Header.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", "not-a-number")
	assert.Zero(t, retryAfter(resp))
}

func TestMapError(t *testing.T) {
	t.Run("deadline exceeded is transient", func(t *testing.T) {
		err := mapError(context.DeadlineExceeded)
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.True(t, domain.IsTransient(err))
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		err := mapError(context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, domain.IsTransient(err))
	})

	t.Run("transport failure is transient", func(t *testing.T) {
		err := mapError(errors.New("connection refused"))
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	})
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientsRequireAPIKey(t *testing.T) {
	_, err := NewEmbedder(EmbedderConfig{})
	assert.Error(t, err)

	_, err = NewGenerator(GeneratorConfig{})
	assert.Error(t, err)
}

func TestEmbedBatchRejectsBadInputBeforeNetwork(t *testing.T) {
	e, err := NewEmbedder(EmbedderConfig{APIKey: "test-key", MaxInputLen: 10})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("empty text", func(t *testing.T) {
		_, err := e.EmbedBatch(ctx, []string{"ok", "   "})
		assert.Error(t, err)
	})

	t.Run("over length limit", func(t *testing.T) {
		_, err := e.EmbedBatch(ctx, []string{"this text is longer than ten bytes"})
		assert.ErrorIs(t, err, domain.ErrInputTooLong)
	})

	t.Run("no texts", func(t *testing.T) {
		vecs, err := e.EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}
