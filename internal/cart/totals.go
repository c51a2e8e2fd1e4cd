package cart

import "math"

type Totals struct {
	Count         int     `json:"count"`
	Lines         int     `json:"lines"`
	Subtotal      float64 `json:"subtotal"`
	OriginalTotal float64 `json:"originalTotal"`
	Savings       float64 `json:"savings"`
}

// ComputeTotals derives the badge count and money totals. A line without
// an original price counts at its unit price in OriginalTotal.
func ComputeTotals(items []CartItem) Totals {
	var t Totals
	for _, it := range items {
		q := float64(it.Quantity)
		t.Count += it.Quantity
		t.Subtotal += it.UnitPrice * q
		if it.OriginalPrice != nil {
			t.OriginalTotal += *it.OriginalPrice * q
		} else {
			t.OriginalTotal += it.UnitPrice * q
		}
	}
	t.Lines = len(items)
	t.Subtotal = roundCents(t.Subtotal)
	t.OriginalTotal = roundCents(t.OriginalTotal)
	t.Savings = roundCents(t.OriginalTotal - t.Subtotal)
	return t
}

// AmountMinor converts a money amount to integer minor units (cents).
func AmountMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
