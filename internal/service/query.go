package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fuelrag/internal/domain"
)

// NoResultsText is the fixed refusal produced when retrieval finds nothing
// relevant. It is deliberately distinct from service-error messages so the
// two are never conflated.
const NoResultsText = "No relevant transactions found for this question."

// QueryConfig bounds the question-answering pipeline.
type QueryConfig struct {
	TopK           int     // retrieved candidates, default 8
	MinScore       float32 // similarity floor below which hits are discarded
	ContextBudget  int     // max combined context size in characters
	MaxQuestionLen int     // questions are truncated to this before embedding
}

const (
	defaultTopK           = 8
	defaultMinScore       = 0.25
	defaultContextBudget  = 6000
	defaultMaxQuestionLen = 2000
)

// AnswerService turns a user question into a grounded Answer: embed the
// question, retrieve top-K similar transactions, assemble a bounded context
// and ask the generative model. Steps are sequential per request; the
// service itself is stateless, so concurrent requests are independent.
type AnswerService struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	generator domain.Generator
	cfg       QueryConfig
}

// NewAnswerService creates the query pipeline.
func NewAnswerService(embedder domain.Embedder, store domain.VectorStore, generator domain.Generator, cfg QueryConfig) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaultMinScore
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = defaultContextBudget
	}
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = defaultMaxQuestionLen
	}
	return &AnswerService{embedder: embedder, store: store, generator: generator, cfg: cfg}
}

// Ask answers a question over the whole index.
func (s *AnswerService) Ask(ctx context.Context, question string) (domain.Answer, error) {
	return s.AskFiltered(ctx, question, nil)
}

// AskFiltered answers a question over the subset matching filter. On a
// generator failure the returned Answer still carries the evidence ids that
// were supplied, so the partial context is never silently dropped.
func (s *AnswerService) AskFiltered(ctx context.Context, question string, filter *domain.Filter) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, errors.New("empty question")
	}
	if len(question) > s.cfg.MaxQuestionLen {
		question = question[:s.cfg.MaxQuestionLen]
	}

	if err := s.checkSchema(ctx); err != nil {
		return domain.Answer{}, err
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.store.Query(ctx, vec, s.cfg.TopK, filter)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("%w: %v", domain.ErrRetrievalFailed, err)
	}
	hits = s.aboveThreshold(hits)
	if len(hits) == 0 {
		slog.Info("no relevant transactions", "question", question)
		return domain.Answer{Text: NoResultsText, NoResults: true}, nil
	}

	contexts, evidence := s.assembleContext(hits)
	answer, err := s.generator.Generate(ctx, question, contexts)
	if err != nil {
		// Preserve the candidate evidence for diagnostics.
		return domain.Answer{Evidence: evidence}, fmt.Errorf("generate answer: %w", err)
	}
	slog.Info("answered question", "question", question, "evidence", len(evidence))
	return domain.Answer{Text: answer, Evidence: evidence}, nil
}

// checkSchema enforces the one-model-per-index invariant before any network
// call: the index's recorded embedding model must match this pipeline's.
func (s *AnswerService) checkSchema(ctx context.Context) error {
	schema, err := s.store.Schema(ctx)
	if err != nil {
		return fmt.Errorf("%w: read index schema: %v", domain.ErrRetrievalFailed, err)
	}
	if schema.EmbeddingModel != "" && schema.EmbeddingModel != s.embedder.Model() {
		return fmt.Errorf("%w: index built with %q, embedder is %q",
			domain.ErrModelMismatch, schema.EmbeddingModel, s.embedder.Model())
	}
	if schema.Dimension != 0 && schema.Dimension != s.embedder.Dimension() {
		return fmt.Errorf("%w: index dimension %d, embedder dimension %d",
			domain.ErrModelMismatch, schema.Dimension, s.embedder.Dimension())
	}
	return nil
}

func (s *AnswerService) aboveThreshold(hits []domain.ScoredEntry) []domain.ScoredEntry {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= s.cfg.MinScore {
			kept = append(kept, h)
		}
	}
	return kept
}

// assembleContext builds the context lines in rank order within the size
// budget, dropping the lowest-ranked entries first. The top hit is always
// included. Evidence lists exactly the transaction ids supplied.
func (s *AnswerService) assembleContext(hits []domain.ScoredEntry) (contexts []string, evidence []string) {
	used := 0
	for i, h := range hits {
		line := h.Entry.Document.Text
		if i > 0 && used+len(line) > s.cfg.ContextBudget {
			break
		}
		contexts = append(contexts, line)
		evidence = append(evidence, h.Entry.ID)
		used += len(line)
	}
	return contexts, evidence
}
