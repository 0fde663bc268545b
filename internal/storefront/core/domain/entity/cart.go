package entity

import "github.com/shopspring/decimal"

// CartLine is one catalog item and its chosen quantity. Title and Image are
// carried for rendering only.
type CartLine struct {
	ID       ID      `json:"id"`
	Title    string  `json:"title,omitempty"`
	Image    string  `json:"image,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price × quantity without rounding.
func (l CartLine) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate returns the first stored-line invariant the line breaks.
func (l CartLine) Validate() error {
	switch {
	case l.ID == "":
		return ErrMissingLineID
	case l.Quantity < 1:
		return ErrInvalidQuantity
	case l.Price < 0:
		return ErrNegativePrice
	}
	return nil
}

// Valid reports whether the line honours the stored-line invariants.
func (l CartLine) Valid() bool {
	return l.Validate() == nil
}

// CountUnits adds up the quantities of lines.
func CountUnits(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// SumLines adds up the subtotals of lines. Order does not matter.
func SumLines(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
