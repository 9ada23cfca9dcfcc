package service

import (
	"context"
	"sync"

	"fuelrag/internal/domain"
)

// fakeEmbedder produces fixed-size vectors; batch can be overridden per test
// to inject failures on specific calls.
type fakeEmbedder struct {
	model string
	dim   int

	mu    sync.Mutex
	calls int
	batch func(call int, texts []string) ([]domain.Vector, error)
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "fake-model", dim: 3}
}

func (f *fakeEmbedder) Model() string  { return f.model }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([]domain.Vector, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	batch := f.batch
	f.mu.Unlock()
	if batch != nil {
		return batch(call, texts)
	}
	vecs := make([]domain.Vector, len(texts))
	for i := range texts {
		vecs[i] = domain.Vector{1, 0, 0}
	}
	return vecs, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore is a scriptable vector store for pipeline tests.
type fakeStore struct {
	mu        sync.Mutex
	schema    domain.IndexSchema
	schemaErr error
	initErr   error
	queryHits []domain.ScoredEntry
	queryErr  error
	upserts   [][]domain.IndexEntry
}

func (f *fakeStore) Init(_ context.Context, schema domain.IndexSchema) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.mu.Lock()
	f.schema = schema
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, entries []domain.IndexEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, entries)
	return nil
}

func (f *fakeStore) Query(context.Context, domain.Vector, int, *domain.Filter) ([]domain.ScoredEntry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryHits, nil
}

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.upserts {
		n += len(batch)
	}
	return n, nil
}

func (f *fakeStore) Schema(context.Context) (domain.IndexSchema, error) {
	if f.schemaErr != nil {
		return domain.IndexSchema{}, f.schemaErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schema, nil
}

// fakeGenerator records what it was asked and answers with a fixed string or
// a scripted error.
type fakeGenerator struct {
	answer string
	err    error

	gotQuestion string
	gotContexts []string
	called      bool
}

func (f *fakeGenerator) Model() string { return "fake-chat" }

func (f *fakeGenerator) Generate(_ context.Context, question string, contexts []string) (string, error) {
	f.called = true
	f.gotQuestion = question
	f.gotContexts = contexts
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
