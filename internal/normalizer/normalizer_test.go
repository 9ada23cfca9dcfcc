package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelrag/internal/domain"
)

func sampleTx() domain.Transaction {
	return domain.Transaction{
		ID:            "T1",
		Timestamp:     time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		StationID:     "A",
		Pump:          "3",
		FuelType:      "Diesel",
		Quantity:      50,
		UnitPrice:     1.25,
		TotalAmount:   62.5,
		PaymentMethod: "Cash",
	}
}

func TestNormalize(t *testing.T) {
	t.Run("renders all fields in fixed order", func(t *testing.T) {
		doc, err := Normalize(sampleTx())
		require.NoError(t, err)
		assert.Equal(t,
			"Sale T1 on 2024-01-01 08:30 at station A pump 3: diesel, 50.00 liters at $1.25 per liter, total $62.50, paid by cash.",
			doc.Text)
		assert.Equal(t, "T1", doc.Transaction.ID)
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := Normalize(sampleTx())
		require.NoError(t, err)
		b, err := Normalize(sampleTx())
		require.NoError(t, err)
		assert.Equal(t, a.Text, b.Text)
	})

	t.Run("optional fields are omitted when empty", func(t *testing.T) {
		tx := sampleTx()
		tx.Pump = ""
		tx.PaymentMethod = ""
		doc, err := Normalize(tx)
		require.NoError(t, err)
		assert.NotContains(t, doc.Text, "pump")
		assert.NotContains(t, doc.Text, "paid by")
	})

	t.Run("normalizes timestamps to UTC", func(t *testing.T) {
		tx := sampleTx()
		tx.Timestamp = time.Date(2024, 1, 1, 10, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
		doc, err := Normalize(tx)
		require.NoError(t, err)
		assert.Contains(t, doc.Text, "2024-01-01 08:30")
	})
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Transaction)
	}{
		{"missing id", func(tx *domain.Transaction) { tx.ID = "  " }},
		{"zero timestamp", func(tx *domain.Transaction) { tx.Timestamp = time.Time{} }},
		{"missing station", func(tx *domain.Transaction) { tx.StationID = "" }},
		{"missing fuel type", func(tx *domain.Transaction) { tx.FuelType = "" }},
		{"zero quantity", func(tx *domain.Transaction) { tx.Quantity = 0 }},
		{"negative quantity", func(tx *domain.Transaction) { tx.Quantity = -1 }},
		{"negative unit price", func(tx *domain.Transaction) { tx.UnitPrice = -0.5 }},
		{"negative total", func(tx *domain.Transaction) { tx.TotalAmount = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := sampleTx()
			tt.mutate(&tx)
			_, err := Normalize(tx)
			assert.ErrorIs(t, err, domain.ErrMalformedRecord)
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	good := sampleTx()
	bad := sampleTx()
	bad.ID = "T2"
	bad.Quantity = -1

	docs, skipped := NormalizeAll([]domain.Transaction{good, bad})
	require.Len(t, docs, 1)
	assert.Equal(t, "T1", docs[0].Transaction.ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "T2", skipped[0].ID)
	assert.ErrorIs(t, skipped[0].Reason, domain.ErrMalformedRecord)
}
