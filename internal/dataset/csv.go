// Package dataset reads transaction datasets and derives human-readable
// overviews of them.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"fuelrag/internal/domain"
)

// Expected CSV header columns. Order in the file is free; columns are
// addressed by name.
var requiredColumns = []string{"id", "timestamp", "station_id", "fuel_type", "quantity", "unit_price", "total_amount"}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

// ReadCSV parses a transaction dataset. Malformed rows are skipped with a
// per-row diagnostic and counted; they never abort the read.
func ReadCSV(r io.Reader) ([]domain.Transaction, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("csv is missing required column %q", name)
		}
	}

	var txs []domain.Transaction
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("skipping unreadable csv row", "line", line, "error", err)
			skipped++
			continue
		}
		tx, err := parseRow(row, cols)
		if err != nil {
			slog.Warn("skipping malformed csv row", "line", line, "error", err)
			skipped++
			continue
		}
		txs = append(txs, tx)
	}
	return txs, skipped, nil
}

// ReadCSVFile is ReadCSV over a file path.
func ReadCSVFile(path string) ([]domain.Transaction, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseRow(row []string, cols map[string]int) (domain.Transaction, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	tx := domain.Transaction{
		ID:            field("id"),
		StationID:     field("station_id"),
		Pump:          field("pump"),
		FuelType:      field("fuel_type"),
		PaymentMethod: field("payment_method"),
	}
	if tx.ID == "" {
		return domain.Transaction{}, fmt.Errorf("empty id")
	}

	ts, err := parseTime(field("timestamp"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("timestamp: %w", err)
	}
	tx.Timestamp = ts

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"quantity", &tx.Quantity},
		{"unit_price", &tx.UnitPrice},
		{"total_amount", &tx.TotalAmount},
	} {
		v, err := parseAmount(field(f.name))
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return tx, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseAmount accepts plain ("1234.56") and European ("1.234,56") numerics.
// Source exports use a comma as the decimal separator and dots as thousand
// separators.
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	s = strings.TrimPrefix(s, "$")
	if i := strings.LastIndex(s, ","); i >= 0 {
		s = strings.ReplaceAll(s[:i], ".", "") + "." + s[i+1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}
