package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedderDeterminism(t *testing.T) {
	e := New(0)
	a, err := e.Embed(context.Background(), "diesel sold at station A")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "diesel sold at station A")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedderProperties(t *testing.T) {
	e := New(128)
	assert.Equal(t, 128, e.Dimension())
	assert.Equal(t, "local-hash-128", e.Model())

	vec, err := e.Embed(context.Background(), "Sale of diesel, 50.00 liters")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	// L2 normalized.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbedderSimilarityOrdering(t *testing.T) {
	e := New(0)
	ctx := context.Background()
	query, err := e.Embed(ctx, "diesel at station A")
	require.NoError(t, err)
	same, err := e.Embed(ctx, "diesel at station A pump 1")
	require.NoError(t, err)
	other, err := e.Embed(ctx, "gasoline at station B pump 2")
	require.NoError(t, err)

	assert.Greater(t, dot(query, same), dot(query, other))
}

func TestEmbedderRejectsEmptyInput(t *testing.T) {
	e := New(0)
	_, err := e.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestEmbedBatch(t *testing.T) {
	e := New(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"diesel", "gasoline"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])

	single, err := e.Embed(context.Background(), "diesel")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
