// Package money formats amounts for presentation. Values are kept as exact
// decimals everywhere else and only rounded here.
package money

import "github.com/shopspring/decimal"

// DefaultDisplayRate converts catalog prices into the display currency.
const DefaultDisplayRate = 85

// Format renders d with two decimal places, rounding half away from zero.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Display converts amount with rate and rounds up to a whole unit of the
// display currency. The result is never stored.
func Display(amount decimal.Decimal, rate int64) int64 {
	return amount.Mul(decimal.NewFromInt(rate)).Ceil().IntPart()
}

// DisplayPrice is Display for a float price straight off a record.
func DisplayPrice(price float64, rate int64) int64 {
	return Display(decimal.NewFromFloat(price), rate)
}
