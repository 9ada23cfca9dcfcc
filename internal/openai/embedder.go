package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"fuelrag/internal/domain"
)

const (
	defaultEmbeddingModel = "text-embedding-3-large"
	defaultDimensions     = 3072
	defaultMaxInputLen    = 8192
)

// Embedder calls the OpenAI embeddings API. One Embedder maps to exactly one
// model and dimension for its lifetime; mixing models in one index is what
// the schema check in the query pipeline guards against.
type Embedder struct {
	sdk         openaisdk.Client
	model       string
	dimensions  int
	maxInputLen int
	maxRetries  int
}

// EmbedderConfig configures the embeddings client. Zero values fall back to
// text-embedding-3-large at 3072 dimensions, matching the index defaults.
type EmbedderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimensions  int
	MaxInputLen int
	MaxRetries  int
	Timeout     time.Duration
}

// NewEmbedder creates the embeddings client. The SDK's own retries are
// disabled; the pipeline's bounded backoff is the only retry layer.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	e := &Embedder{
		sdk:         openaisdk.NewClient(opts...),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		maxInputLen: cfg.MaxInputLen,
		maxRetries:  cfg.MaxRetries,
	}
	if e.model == "" {
		e.model = defaultEmbeddingModel
	}
	if e.dimensions <= 0 {
		e.dimensions = defaultDimensions
	}
	if e.maxInputLen <= 0 {
		e.maxInputLen = defaultMaxInputLen
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}
	return e, nil
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string { return e.model }

// Dimension returns the configured vector size.
func (e *Embedder) Dimension() int { return e.dimensions }

// Embed returns the embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one API call, retrying transient failures
// with exponential backoff. Rejects empty or over-limit inputs before any
// network traffic.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
		if len(t) > e.maxInputLen {
			return nil, fmt.Errorf("%w: input %d is %d bytes, limit %d", domain.ErrInputTooLong, i, len(t), e.maxInputLen)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying embedding call", "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, backoff(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}
		vecs, err := e.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: embedding retries exhausted: %v", domain.ErrUpstreamUnavailable, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, texts []string) ([]domain.Vector, error) {
	resp, err := e.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openaisdk.EmbeddingModel(e.model),
		Dimensions: param.NewOpt(int64(e.dimensions)),
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([]domain.Vector, len(resp.Data))
	for _, d := range resp.Data {
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(d.Embedding), e.dimensions)
		}
		vec := make(domain.Vector, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[int(d.Index)] = vec
	}
	return out, nil
}
