package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelrag/internal/domain"
	"fuelrag/internal/embedding/local"
	"fuelrag/internal/vectorstore/memory"
)

func hit(id, text string, score float32) domain.ScoredEntry {
	return domain.ScoredEntry{
		Entry: domain.IndexEntry{
			ID:       id,
			Document: domain.Document{Transaction: domain.Transaction{ID: id}, Text: text},
		},
		Score: score,
	}
}

func newAnswerService(store *fakeStore, gen *fakeGenerator, cfg QueryConfig) *AnswerService {
	return NewAnswerService(newFakeEmbedder(), store, gen, cfg)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := newAnswerService(&fakeStore{}, &fakeGenerator{}, QueryConfig{})
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.Ask(context.Background(), q)
		assert.Error(t, err)
	}
}

func TestAskModelMismatch(t *testing.T) {
	t.Run("different model", func(t *testing.T) {
		store := &fakeStore{schema: domain.IndexSchema{Dimension: 3, EmbeddingModel: "other-model"}}
		gen := &fakeGenerator{}
		svc := newAnswerService(store, gen, QueryConfig{})

		_, err := svc.Ask(context.Background(), "how much diesel?")
		assert.ErrorIs(t, err, domain.ErrModelMismatch)
		assert.False(t, gen.called)
	})

	t.Run("different dimension", func(t *testing.T) {
		store := &fakeStore{schema: domain.IndexSchema{Dimension: 1536, EmbeddingModel: "fake-model"}}
		svc := newAnswerService(store, &fakeGenerator{}, QueryConfig{})

		_, err := svc.Ask(context.Background(), "how much diesel?")
		assert.ErrorIs(t, err, domain.ErrModelMismatch)
	})

	t.Run("empty index schema passes", func(t *testing.T) {
		store := &fakeStore{queryHits: []domain.ScoredEntry{hit("T1", "sale T1", 0.9)}}
		gen := &fakeGenerator{answer: "50 liters"}
		svc := newAnswerService(store, gen, QueryConfig{})

		answer, err := svc.Ask(context.Background(), "how much diesel?")
		require.NoError(t, err)
		assert.Equal(t, "50 liters", answer.Text)
	})
}

func TestAskRetrievalFailures(t *testing.T) {
	t.Run("schema read fails", func(t *testing.T) {
		store := &fakeStore{schemaErr: errors.New("connection refused")}
		svc := newAnswerService(store, &fakeGenerator{}, QueryConfig{})

		_, err := svc.Ask(context.Background(), "how much diesel?")
		assert.ErrorIs(t, err, domain.ErrRetrievalFailed)
	})

	t.Run("search fails", func(t *testing.T) {
		store := &fakeStore{queryErr: errors.New("timeout")}
		svc := newAnswerService(store, &fakeGenerator{}, QueryConfig{})

		_, err := svc.Ask(context.Background(), "how much diesel?")
		assert.ErrorIs(t, err, domain.ErrRetrievalFailed)
	})
}

func TestAskNoResultsRefusal(t *testing.T) {
	t.Run("nothing retrieved", func(t *testing.T) {
		gen := &fakeGenerator{}
		svc := newAnswerService(&fakeStore{}, gen, QueryConfig{})

		answer, err := svc.Ask(context.Background(), "how much jet fuel?")
		require.NoError(t, err)
		assert.True(t, answer.NoResults)
		assert.Equal(t, NoResultsText, answer.Text)
		assert.Empty(t, answer.Evidence)
		assert.False(t, gen.called)
	})

	t.Run("all hits below threshold", func(t *testing.T) {
		store := &fakeStore{queryHits: []domain.ScoredEntry{
			hit("T1", "sale T1", 0.1), hit("T2", "sale T2", 0.05),
		}}
		gen := &fakeGenerator{}
		svc := newAnswerService(store, gen, QueryConfig{MinScore: 0.25})

		answer, err := svc.Ask(context.Background(), "how much jet fuel?")
		require.NoError(t, err)
		assert.True(t, answer.NoResults)
		assert.False(t, gen.called)
	})
}

func TestAskContextBudget(t *testing.T) {
	long := strings.Repeat("x", 80)
	store := &fakeStore{queryHits: []domain.ScoredEntry{
		hit("T1", long, 0.9), hit("T2", long, 0.8), hit("T3", long, 0.7),
	}}
	gen := &fakeGenerator{answer: "ok"}
	svc := newAnswerService(store, gen, QueryConfig{MinScore: 0.5, ContextBudget: 170})

	answer, err := svc.Ask(context.Background(), "how much diesel?")
	require.NoError(t, err)

	// The third hit would exceed the budget and is dropped; evidence lists
	// exactly what the generator saw.
	assert.Equal(t, []string{"T1", "T2"}, answer.Evidence)
	assert.Len(t, gen.gotContexts, 2)
}

func TestAskContextBudgetKeepsTopHit(t *testing.T) {
	store := &fakeStore{queryHits: []domain.ScoredEntry{
		hit("T1", strings.Repeat("x", 100), 0.9), hit("T2", "short", 0.8),
	}}
	gen := &fakeGenerator{answer: "ok"}
	svc := newAnswerService(store, gen, QueryConfig{MinScore: 0.5, ContextBudget: 10})

	answer, err := svc.Ask(context.Background(), "how much diesel?")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, answer.Evidence)
}

func TestAskGeneratorFailure(t *testing.T) {
	t.Run("evidence survives the error", func(t *testing.T) {
		store := &fakeStore{queryHits: []domain.ScoredEntry{hit("T1", "sale T1", 0.9)}}
		gen := &fakeGenerator{err: errors.New("boom")}
		svc := newAnswerService(store, gen, QueryConfig{})

		answer, err := svc.Ask(context.Background(), "how much diesel?")
		require.Error(t, err)
		assert.Equal(t, []string{"T1"}, answer.Evidence)
		assert.Empty(t, answer.Text)
	})

	t.Run("content filter is surfaced", func(t *testing.T) {
		store := &fakeStore{queryHits: []domain.ScoredEntry{hit("T1", "sale T1", 0.9)}}
		gen := &fakeGenerator{err: domain.ErrContentFiltered}
		svc := newAnswerService(store, gen, QueryConfig{})

		_, err := svc.Ask(context.Background(), "how much diesel?")
		assert.ErrorIs(t, err, domain.ErrContentFiltered)
	})
}

func TestAskPassesQuestionAndContexts(t *testing.T) {
	store := &fakeStore{queryHits: []domain.ScoredEntry{
		hit("T1", "sale T1", 0.9), hit("T2", "sale T2", 0.8),
	}}
	gen := &fakeGenerator{answer: "95 liters of diesel"}
	svc := newAnswerService(store, gen, QueryConfig{})

	answer, err := svc.Ask(context.Background(), "  how much diesel?  ")
	require.NoError(t, err)

	assert.Equal(t, "how much diesel?", gen.gotQuestion)
	assert.Equal(t, []string{"sale T1", "sale T2"}, gen.gotContexts)
	assert.Equal(t, "95 liters of diesel", answer.Text)
	assert.Equal(t, []string{"T1", "T2"}, answer.Evidence)
	assert.False(t, answer.NoResults)
}

// End-to-end over the real local embedder and in-memory index: three known
// sales, one question, and the best-matching transaction must come back as
// top evidence.
func TestAnswerPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	embedder := local.New(0)
	store := memory.New()

	txs := []domain.Transaction{
		{ID: "T1", Timestamp: date(2024, 1, 1), StationID: "A", Pump: "3", FuelType: "diesel", Quantity: 50, UnitPrice: 1.25, TotalAmount: 62.5, PaymentMethod: "cash"},
		{ID: "T2", Timestamp: date(2024, 1, 2), StationID: "A", Pump: "1", FuelType: "gasoline", Quantity: 30, UnitPrice: 1.40, TotalAmount: 42, PaymentMethod: "card"},
		{ID: "T3", Timestamp: date(2024, 1, 3), StationID: "B", Pump: "2", FuelType: "diesel", Quantity: 45, UnitPrice: 1.30, TotalAmount: 58.5, PaymentMethod: "cash"},
	}
	ingest := NewIngestService(embedder, store, IngestConfig{})
	report, err := ingest.Ingest(ctx, txs)
	require.NoError(t, err)
	require.Equal(t, 3, report.Ingested)

	gen := &fakeGenerator{answer: "50.00 liters of diesel were sold at station A (T1)."}
	svc := NewAnswerService(embedder, store, gen, QueryConfig{TopK: 3, MinScore: 0.05})

	answer, err := svc.Ask(ctx, "How much diesel was sold at station A?")
	require.NoError(t, err)

	assert.False(t, answer.NoResults)
	assert.Equal(t, gen.answer, answer.Text)
	require.NotEmpty(t, answer.Evidence)
	assert.Equal(t, "T1", answer.Evidence[0])
	require.NotEmpty(t, gen.gotContexts)
	assert.Contains(t, gen.gotContexts[0], "Sale T1")
	assert.Contains(t, gen.gotContexts[0], "diesel")
	assert.Contains(t, gen.gotContexts[0], "station A")

	// The same question restricted to station B must not cite T1.
	gen2 := &fakeGenerator{answer: "45.00 liters at station B."}
	svc2 := NewAnswerService(embedder, store, gen2, QueryConfig{TopK: 3, MinScore: 0.05})
	answer2, err := svc2.AskFiltered(ctx, "How much diesel was sold?", &domain.Filter{StationID: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T3"}, answer2.Evidence)
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 10, 0, 0, 0, time.UTC)
}
