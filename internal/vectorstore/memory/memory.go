// Package memory provides an in-memory vector store using brute-force
// cosine similarity. Used by tests and offline runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"fuelrag/internal/domain"
)

// Store keeps entries by id under an RWMutex. Upsert replaces entries with
// the same id, so re-ingesting a dataset leaves the count unchanged.
type Store struct {
	mu      sync.RWMutex
	schema  domain.IndexSchema
	entries map[string]domain.IndexEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]domain.IndexEntry)}
}

// Init records the schema. Re-initializing with the same schema is a no-op;
// a different schema fails, matching the one-model-per-index invariant.
func (s *Store) Init(_ context.Context, schema domain.IndexSchema) error {
	if schema.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", schema.Dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 && s.schema != schema {
		return fmt.Errorf("%w: index built with %s/%d", domain.ErrModelMismatch, s.schema.EmbeddingModel, s.schema.Dimension)
	}
	s.schema = schema
	return nil
}

// Upsert inserts or replaces entries by id.
func (s *Store) Upsert(_ context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema.Dimension == 0 {
		return fmt.Errorf("store not initialized")
	}
	for _, e := range entries {
		if len(e.Vector) != s.schema.Dimension {
			return fmt.Errorf("%w: entry %s has %d, index has %d", domain.ErrDimensionMismatch, e.ID, len(e.Vector), s.schema.Dimension)
		}
	}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

// Query returns the top-k entries by cosine similarity, optionally filtered.
func (s *Store) Query(_ context.Context, vector domain.Vector, k int, filter *domain.Filter) ([]domain.ScoredEntry, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.schema.Dimension != 0 && len(vector) != s.schema.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d, index has %d", domain.ErrDimensionMismatch, len(vector), s.schema.Dimension)
	}
	scored := make([]domain.ScoredEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !matches(e, filter) {
			continue
		}
		scored = append(scored, domain.ScoredEntry{Entry: e, Score: cosine(e.Vector, vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Delete removes an entry; absent ids are a no-op.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Count reports the number of stored entries.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Schema reports the schema set at Init, or zero for an untouched store.
func (s *Store) Schema(_ context.Context) (domain.IndexSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema, nil
}

func matches(e domain.IndexEntry, f *domain.Filter) bool {
	if f.Empty() {
		return true
	}
	tx := e.Document.Transaction
	if f.FuelType != "" && tx.FuelType != f.FuelType {
		return false
	}
	if f.StationID != "" && tx.StationID != f.StationID {
		return false
	}
	if !f.From.IsZero() && tx.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Timestamp.After(f.To) {
		return false
	}
	return true
}

func cosine(a, b domain.Vector) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
