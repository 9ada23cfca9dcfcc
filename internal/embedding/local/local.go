// Package local provides a deterministic, network-free embedder based on
// feature hashing. It exists for offline runs and tests; retrieval quality
// is lexical, not semantic.
package local

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"

	"fuelrag/internal/domain"
)

const defaultDimension = 512

// Embedder hashes lowercase word tokens into a fixed-size vector with a
// secondary sign hash, then L2-normalizes. The same text always yields the
// same vector, in any process.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
}

// New creates a hashing embedder with the given dimension (or the default
// when dimension <= 0).
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
	}
}

// Model returns the identifier of this embedder, including its dimension
// since vectors of different sizes are incomparable.
func (e *Embedder) Model() string { return "local-hash-" + strconv.Itoa(e.dimension) }

// Dimension returns the fixed vector size.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed bag-of-words vector for text.
func (e *Embedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty input text")
	}
	vec := make(domain.Vector, e.dimension)
	for _, tok := range e.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		idx, sign := e.slot(tok)
		vec[idx] += sign
	}
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// slot maps a token to a bucket index and a ±1 sign. The sign hash lets
// colliding tokens partially cancel instead of always inflating a bucket.
func (e *Embedder) slot(token string) (int, float32) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	sign := float32(1)
	if (sum>>32)&1 == 1 {
		sign = -1
	}
	return idx, sign
}
