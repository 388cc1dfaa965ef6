package acp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"79.99", 7999, false},
		{"80", 8000, false},
		{"0.5", 50, false},
		{".25", 25, false},
		{" 12.30 ", 1230, false},
		{"1.234", 0, true},
		{"1.", 0, true},
		{"-1.00", 0, true},
		{"1e3", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "79.99", FormatMinor(7999))
	assert.Equal(t, "0.05", FormatMinor(5))
	assert.Equal(t, "-1.50", FormatMinor(-150))
	assert.Equal(t, "100.00", Amount(10000).String())
}

func TestComputeTotals(t *testing.T) {
	t.Run("should compute line and session totals in minor units", func(t *testing.T) {
		lines := []LineItem{
			{ID: "li1", Item: Item{ID: "prod_kb", Quantity: 2}, BaseAmount: 7999},
			{ID: "li2", Item: Item{ID: "prod_cable", Quantity: 1}, BaseAmount: 999},
		}

		totals := ComputeTotals(lines, 825, 500)

		assert.Equal(t, Amount(15998), lines[0].Subtotal)
		assert.Equal(t, Amount(1320), lines[0].Tax)
		assert.Equal(t, Amount(17318), lines[0].Total)
		assert.Equal(t, Amount(82), lines[1].Tax)

		session := &CheckoutSession{Totals: totals}
		assert.Equal(t, Amount(16997), session.TotalOf(TotalSubtotal))
		assert.Equal(t, Amount(1402), session.TotalOf(TotalTax))
		assert.Equal(t, Amount(500), session.TotalOf(TotalFulfillment))
		assert.Equal(t, Amount(18899), session.TotalOf(TotalTotal))
	})

	t.Run("should omit tax and shipping when not configured", func(t *testing.T) {
		lines := []LineItem{{Item: Item{Quantity: 3}, BaseAmount: 2999}}

		session := &CheckoutSession{Totals: ComputeTotals(lines, 0, 0)}

		assert.Equal(t, Amount(8997), session.TotalOf(TotalTotal))
		assert.Zero(t, session.TotalOf(TotalTax))
	})
}
