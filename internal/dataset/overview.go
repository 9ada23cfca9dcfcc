package dataset

import (
	"fmt"
	"sort"
	"strings"

	"fuelrag/internal/domain"
)

// Overview returns a one-line summary of a dataset: record count, date span,
// fuel types and total dispensed volume. Shown in the TUI header and after
// ingestion runs.
func Overview(txs []domain.Transaction) string {
	if len(txs) == 0 {
		return "no transactions loaded"
	}
	first, last := txs[0].Timestamp, txs[0].Timestamp
	volume := 0.0
	fuels := map[string]struct{}{}
	for _, tx := range txs {
		if tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
		volume += tx.Quantity
		if tx.FuelType != "" {
			fuels[strings.ToLower(tx.FuelType)] = struct{}{}
		}
	}
	names := make([]string, 0, len(fuels))
	for f := range fuels {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d transactions from %s to %s, fuels: %s, total volume %.2f L",
		len(txs), first.UTC().Format("2006-01-02"), last.UTC().Format("2006-01-02"),
		strings.Join(names, ", "), volume)
}
