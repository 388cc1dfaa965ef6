package acp

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor units (cents for USD)
type Amount int64

// minorDigits is the number of fractional digits for supported currencies
const minorDigits = 2

// ParseDecimal parses a non-negative decimal string such as "79.99" into minor units.
// More fractional digits than the currency allows is an error.
func ParseDecimal(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("acp: empty amount")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > minorDigits) {
		return 0, fmt.Errorf("acp: invalid amount %q", s)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("acp: invalid amount %q", s)
			}
		}
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("acp: invalid amount %q: %w", s, err)
	}

	frac += strings.Repeat("0", minorDigits-len(frac))
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("acp: invalid amount %q: %w", s, err)
	}

	return Amount(units*100 + minor), nil
}

// FormatMinor formats minor units as a decimal string, e.g. 7999 -> "79.99"
func FormatMinor(a Amount) string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d", sign, a/100, a%100)
}

// String implements fmt.Stringer
func (a Amount) String() string {
	return FormatMinor(a)
}

// Tax returns the tax on a at the given rate in basis points, rounded half up
func Tax(a Amount, basisPoints int64) Amount {
	if basisPoints <= 0 {
		return 0
	}
	return Amount((int64(a)*basisPoints + 5000) / 10000)
}

// ComputeTotals fills in each line's subtotal, tax and total in place and
// returns the session totals: subtotal, tax, fulfillment and grand total.
func ComputeTotals(lines []LineItem, taxBasisPoints int64, fulfillment Amount) []Total {
	var subtotal, tax Amount
	for i := range lines {
		line := &lines[i]
		line.Subtotal = line.BaseAmount * Amount(line.Item.Quantity)
		line.Tax = Tax(line.Subtotal, taxBasisPoints)
		line.Total = line.Subtotal + line.Tax

		subtotal += line.Subtotal
		tax += line.Tax
	}

	return []Total{
		{Type: TotalSubtotal, DisplayText: "Subtotal", Amount: subtotal},
		{Type: TotalTax, DisplayText: "Tax", Amount: tax},
		{Type: TotalFulfillment, DisplayText: "Shipping", Amount: fulfillment},
		{Type: TotalTotal, DisplayText: "Total", Amount: subtotal + tax + fulfillment},
	}
}
