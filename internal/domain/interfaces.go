package domain

import "context"

// Embedder converts text into a fixed-dimension numeric vector. The mapping
// is logically pure: the same text yields the same vector for a given model.
type Embedder interface {
	Model() string
	Dimension() int
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// VectorStore persists (id, vector, payload) entries and answers
// nearest-neighbor queries ranked by cosine similarity.
type VectorStore interface {
	// Init prepares the index for the given schema. Calling Init on an
	// existing compatible index is a no-op.
	Init(ctx context.Context, schema IndexSchema) error
	// Upsert inserts or replaces entries by id. Vectors whose length differs
	// from the index dimension fail with ErrDimensionMismatch.
	Upsert(ctx context.Context, entries []IndexEntry) error
	// Query returns at most k entries ordered by descending similarity.
	// k <= 0 yields an empty result, not an error.
	Query(ctx context.Context, vector Vector, k int, filter *Filter) ([]ScoredEntry, error)
	// Delete removes an entry; deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error
	// Count reports the number of stored entries.
	Count(ctx context.Context) (int, error)
	// Schema reports the dimension and embedding model the index was
	// populated with. An empty index reports a zero schema.
	Schema(ctx context.Context) (IndexSchema, error)
}

// Generator produces a natural-language answer from a question and the
// retrieved context lines, constrained to that context.
type Generator interface {
	Model() string
	Generate(ctx context.Context, question string, contexts []string) (string, error)
}
