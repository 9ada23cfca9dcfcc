package domain

import "time"

// Transaction is one fuel-sale record as delivered by the dataset.
// Immutable once ingested; TransactionID is the unique key.
type Transaction struct {
	ID            string
	Timestamp     time.Time
	StationID     string
	Pump          string
	FuelType      string
	Quantity      float64 // liters
	UnitPrice     float64
	TotalAmount   float64
	PaymentMethod string
}

// Document is the canonical textual rendering of a Transaction, with the
// structured fields retained as payload metadata. Re-normalizing the same
// transaction yields byte-identical text.
type Document struct {
	Transaction Transaction
	Text        string
}

// Vector is a fixed-dimension embedding.
type Vector = []float32

// IndexEntry is what the vector store holds: the transaction id, its
// embedding and the document payload.
type IndexEntry struct {
	ID       string
	Vector   Vector
	Document Document
}

// ScoredEntry is one retrieval hit with its cosine similarity score.
type ScoredEntry struct {
	Entry IndexEntry
	Score float32
}

// Filter narrows a query's candidate set over payload fields without
// changing the ranking formula. Zero values mean "no constraint".
type Filter struct {
	FuelType  string
	StationID string
	From      time.Time
	To        time.Time
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	return f == nil || (f.FuelType == "" && f.StationID == "" && f.From.IsZero() && f.To.IsZero())
}

// IndexSchema describes how an index was populated. A populated index
// belongs to exactly one embedding model for its lifetime.
type IndexSchema struct {
	Dimension      int
	EmbeddingModel string
}

// Answer is the final response to a question together with the transaction
// ids supplied to the generative model as candidate evidence.
type Answer struct {
	Text      string
	Evidence  []string
	NoResults bool
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Ingested int
	Skipped  []string // malformed records, by transaction id (or row tag)
	Failed   []string // records whose batch exhausted its retry budget
}
