package normalizer

import (
	"fmt"
	"strings"

	"fuelrag/internal/domain"
)

// Timestamps and numerics are rendered with one fixed format each so that
// the same transaction always produces byte-identical text. Changing either
// invalidates every stored embedding.
const timeLayout = "2006-01-02 15:04"

// Normalize converts a Transaction into its canonical Document. Field order
// is fixed: id, date, station, pump, fuel type, quantity, unit price, total,
// payment method. Missing or ill-typed fields fail with ErrMalformedRecord.
func Normalize(tx domain.Transaction) (domain.Document, error) {
	if err := validate(tx); err != nil {
		return domain.Document{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sale %s on %s at station %s", tx.ID, tx.Timestamp.UTC().Format(timeLayout), tx.StationID)
	if tx.Pump != "" {
		fmt.Fprintf(&b, " pump %s", tx.Pump)
	}
	fmt.Fprintf(&b, ": %s, %.2f liters at $%.2f per liter, total $%.2f",
		strings.ToLower(tx.FuelType), tx.Quantity, tx.UnitPrice, tx.TotalAmount)
	if tx.PaymentMethod != "" {
		fmt.Fprintf(&b, ", paid by %s", strings.ToLower(tx.PaymentMethod))
	}
	b.WriteString(".")
	return domain.Document{Transaction: tx, Text: b.String()}, nil
}

// NormalizeAll normalizes every transaction, partitioning out the malformed
// ones instead of aborting. The returned skip list pairs each rejected id
// with its reason.
func NormalizeAll(txs []domain.Transaction) (docs []domain.Document, skipped []SkippedRecord) {
	for _, tx := range txs {
		doc, err := Normalize(tx)
		if err != nil {
			skipped = append(skipped, SkippedRecord{ID: tx.ID, Reason: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}

// SkippedRecord identifies a transaction rejected during normalization.
type SkippedRecord struct {
	ID     string
	Reason error
}

func validate(tx domain.Transaction) error {
	switch {
	case strings.TrimSpace(tx.ID) == "":
		return fmt.Errorf("%w: missing transaction id", domain.ErrMalformedRecord)
	case tx.Timestamp.IsZero():
		return fmt.Errorf("%w: transaction %s has no timestamp", domain.ErrMalformedRecord, tx.ID)
	case strings.TrimSpace(tx.StationID) == "":
		return fmt.Errorf("%w: transaction %s has no station", domain.ErrMalformedRecord, tx.ID)
	case strings.TrimSpace(tx.FuelType) == "":
		return fmt.Errorf("%w: transaction %s has no fuel type", domain.ErrMalformedRecord, tx.ID)
	case tx.Quantity <= 0:
		return fmt.Errorf("%w: transaction %s has non-positive quantity", domain.ErrMalformedRecord, tx.ID)
	case tx.UnitPrice < 0 || tx.TotalAmount < 0:
		return fmt.Errorf("%w: transaction %s has a negative amount", domain.ErrMalformedRecord, tx.ID)
	}
	return nil
}
