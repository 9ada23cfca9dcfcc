// Package service holds the two pipelines: batch ingestion of transactions
// into the vector index, and question answering over it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fuelrag/internal/domain"
	"fuelrag/internal/normalizer"
)

// IngestConfig bounds the ingestion pipeline. Zero values fall back to the
// defaults below.
type IngestConfig struct {
	BatchSize  int     // records per embedding call and upsert
	Workers    int     // concurrent batches in flight
	MaxRetries int     // per-batch retry budget for transient failures
	RatePerSec float64 // embedding calls per second, 0 = unlimited
}

const (
	defaultBatchSize  = 10
	defaultWorkers    = 4
	defaultMaxRetries = 3
)

// IngestService bulk-loads transactions into the vector store. Batches are
// independent (distinct transaction ids), so they run concurrently under a
// bounded worker pool; a shared rate limiter caps embedding calls.
type IngestService struct {
	embedder domain.Embedder
	store    domain.VectorStore
	cfg      IngestConfig
	limiter  *rate.Limiter
}

// NewIngestService creates the ingestion pipeline.
func NewIngestService(embedder domain.Embedder, store domain.VectorStore, cfg IngestConfig) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &IngestService{embedder: embedder, store: store, cfg: cfg, limiter: limiter}
}

// Ingest normalizes, embeds and upserts all transactions. Malformed records
// are skipped with a diagnostic; a batch that exhausts its retry budget is
// recorded as failed and ingestion continues. Only fatal errors
// (authentication, dimension mismatch) abort the run. Re-running on an
// unchanged dataset is a logical no-op: ids are stable and vectors and
// payloads are deterministic per embedding model.
func (s *IngestService) Ingest(ctx context.Context, txs []domain.Transaction) (domain.IngestReport, error) {
	var report domain.IngestReport

	docs, skipped := normalizer.NormalizeAll(txs)
	for _, sk := range skipped {
		slog.Warn("skipping malformed record", "transaction_id", sk.ID, "reason", sk.Reason)
		report.Skipped = append(report.Skipped, sk.ID)
	}
	if len(docs) == 0 {
		return report, nil
	}

	schema := domain.IndexSchema{Dimension: s.embedder.Dimension(), EmbeddingModel: s.embedder.Model()}
	if err := s.store.Init(ctx, schema); err != nil {
		return report, fmt.Errorf("init index: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for start := 0; start < len(docs); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(docs))
		batch := docs[start:end]
		g.Go(func() error {
			err := s.ingestBatch(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Ingested += len(batch)
			case isFatal(err):
				return err
			default:
				ids := batchIDs(batch)
				slog.Error("batch failed, continuing", "transaction_ids", ids, "error", err)
				report.Failed = append(report.Failed, ids...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	slog.Info("ingestion finished",
		"ingested", report.Ingested,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

// ingestBatch embeds and upserts one batch, retrying transient failures
// with exponential backoff. The upsert happens only after the whole batch
// embedded, so a failed batch never leaves partial entries behind.
func (s *IngestService) ingestBatch(ctx context.Context, batch []domain.Document) error {
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Text
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1, lastErr)); err != nil {
				return err
			}
		}
		err := s.tryBatch(ctx, batch, texts)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		slog.Debug("transient batch failure", "attempt", attempt, "error", err)
		lastErr = err
	}
	return fmt.Errorf("%w: batch retries exhausted: %v", domain.ErrUpstreamUnavailable, lastErr)
}

func (s *IngestService) tryBatch(ctx context.Context, batch []domain.Document, texts []string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(batch))
	}
	entries := make([]domain.IndexEntry, len(batch))
	for i, d := range batch {
		entries[i] = domain.IndexEntry{ID: d.Transaction.ID, Vector: vecs[i], Document: d}
	}
	if err := s.store.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrAuthenticationFailed) ||
		errors.Is(err, domain.ErrDimensionMismatch) ||
		errors.Is(err, domain.ErrModelMismatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func batchIDs(batch []domain.Document) []string {
	ids := make([]string, len(batch))
	for i, d := range batch {
		ids[i] = d.Transaction.ID
	}
	return ids
}

// retryDelay doubles from 200ms capped at 5s; a server-provided rate-limit
// hint takes precedence.
func retryDelay(attempt int, err error) time.Duration {
	if rl, ok := domain.AsRateLimit(err); ok && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
