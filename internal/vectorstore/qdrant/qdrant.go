// Package qdrant is a minimal REST adapter to a Qdrant collection. It
// assumes cosine distance and creates the collection if missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"fuelrag/internal/domain"
)

// Point ids must be UUIDs or integers in Qdrant; transaction ids are hashed
// into a stable UUID so that re-upserting the same transaction replaces the
// prior point.
var pointNamespace = uuid.MustParse("9f2c1e7a-4b1d-4c52-8f4e-27d3a5e60b11")

// Store is a Qdrant-backed vector store.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu    sync.Mutex
	model string // embedding model from Init, stamped into payloads
}

// Config contains connection details for a Qdrant collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New creates a Qdrant store client.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID returns the deterministic Qdrant point id for a transaction id.
func PointID(transactionID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(transactionID)).String()
}

// Init ensures the collection exists with the given dimension and cosine
// distance. An existing collection is left untouched.
func (s *Store) Init(ctx context.Context, schema domain.IndexSchema) error {
	if schema.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", schema.Dimension)
	}
	s.mu.Lock()
	s.model = schema.EmbeddingModel
	s.mu.Unlock()
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	if err == nil {
		if got := info.Result.Config.Params.Vectors.Size; got != 0 && got != schema.Dimension {
			return fmt.Errorf("%w: collection has dimension %d, embedder has %d", domain.ErrDimensionMismatch, got, schema.Dimension)
		}
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     schema.Dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
}

// Upsert writes entries as points with the document payload, waiting for
// the write to be applied.
func (s *Store) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":      PointID(e.ID),
			"vector":  e.Vector,
			"payload": payloadOf(e, model),
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Query runs a filtered similarity search.
func (s *Store) Query(ctx context.Context, vector domain.Vector, k int, filter *domain.Filter) ([]domain.ScoredEntry, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if qf := buildFilter(filter); qf != nil {
		req["filter"] = qf
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.ScoredEntry, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.ScoredEntry{
			Entry: entryFromPayload(r.Payload),
			Score: float32(r.Score),
		})
	}
	return results, nil
}

// Delete removes the point for a transaction id; absent ids are a no-op on
// the Qdrant side.
func (s *Store) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{PointID(id)}}
	return s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
}

// Count reports the exact number of stored points.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// Schema reports the collection dimension plus the embedding model stamped
// into the point payloads at ingest time, probed from a single point.
func (s *Store) Schema(ctx context.Context) (domain.IndexSchema, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info); err != nil {
		if isNotFound(err) {
			return domain.IndexSchema{}, nil
		}
		return domain.IndexSchema{}, err
	}
	schema := domain.IndexSchema{Dimension: info.Result.Config.Params.Vectors.Size}

	var scroll struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	req := map[string]any{"limit": 1, "with_payload": true, "with_vector": false}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &scroll); err != nil {
		return schema, err
	}
	if len(scroll.Result.Points) > 0 {
		if m, ok := scroll.Result.Points[0].Payload["embedding_model"].(string); ok {
			schema.EmbeddingModel = m
		}
	}
	return schema, nil
}

func payloadOf(e domain.IndexEntry, model string) map[string]any {
	tx := e.Document.Transaction
	return map[string]any{
		"transaction_id":  tx.ID,
		"timestamp":       tx.Timestamp.UTC().Format(time.RFC3339),
		"timestamp_unix":  tx.Timestamp.Unix(),
		"station_id":      tx.StationID,
		"pump":            tx.Pump,
		"fuel_type":       tx.FuelType,
		"quantity":        tx.Quantity,
		"unit_price":      tx.UnitPrice,
		"total_amount":    tx.TotalAmount,
		"payment_method":  tx.PaymentMethod,
		"text":            e.Document.Text,
		"embedding_model": model,
	}
}

func entryFromPayload(p map[string]any) domain.IndexEntry {
	str := func(key string) string {
		v, _ := p[key].(string)
		return v
	}
	num := func(key string) float64 {
		v, _ := p[key].(float64)
		return v
	}
	tx := domain.Transaction{
		ID:            str("transaction_id"),
		StationID:     str("station_id"),
		Pump:          str("pump"),
		FuelType:      str("fuel_type"),
		Quantity:      num("quantity"),
		UnitPrice:     num("unit_price"),
		TotalAmount:   num("total_amount"),
		PaymentMethod: str("payment_method"),
	}
	if ts, err := time.Parse(time.RFC3339, str("timestamp")); err == nil {
		tx.Timestamp = ts
	}
	return domain.IndexEntry{
		ID:       tx.ID,
		Document: domain.Document{Transaction: tx, Text: str("text")},
	}
}

func buildFilter(f *domain.Filter) map[string]any {
	if f.Empty() {
		return nil
	}
	var must []map[string]any
	if f.FuelType != "" {
		must = append(must, map[string]any{"key": "fuel_type", "match": map[string]any{"value": f.FuelType}})
	}
	if f.StationID != "" {
		must = append(must, map[string]any{"key": "station_id", "match": map[string]any{"value": f.StationID}})
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		rng := map[string]any{}
		if !f.From.IsZero() {
			rng["gte"] = f.From.Unix()
		}
		if !f.To.IsZero() {
			rng["lte"] = f.To.Unix()
		}
		must = append(must, map[string]any{"key": "timestamp_unix", "range": rng})
	}
	return map[string]any{"must": must}
}

// do executes one request and decodes the response, mapping HTTP failures
// into the domain taxonomy.
func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrServiceUnavailable, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp, method, url)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusError(resp *http.Response, method, url string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: qdrant %s %s: %s", domain.ErrAuthenticationFailed, method, url, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		hint := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			hint = time.Duration(secs) * time.Second
		}
		return &domain.RateLimitError{RetryAfter: hint}
	case resp.StatusCode == http.StatusNotFound:
		return &notFoundError{method: method, url: url}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant %s %s: %s", domain.ErrServiceUnavailable, method, url, resp.Status)
	default:
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
}

type notFoundError struct{ method, url string }

func (e *notFoundError) Error() string { return fmt.Sprintf("qdrant %s %s: not found", e.method, e.url) }

func isNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}

func (s *Store) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}
