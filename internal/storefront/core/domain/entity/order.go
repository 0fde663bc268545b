package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// StatusCompleted is the only status an order is created with; partial and
// refund states are not modeled.
const StatusCompleted OrderStatus = "completed"

// CurrencyPlaces is the precision totals are rounded to.
const CurrencyPlaces = 2

// Order is the immutable snapshot of a completed purchase.
type Order struct {
	ID     ID          `json:"id,omitempty"`
	UserID string      `json:"userId"`
	Items  []CartLine  `json:"items"`
	Total  float64     `json:"total"`
	Date   string      `json:"date"`
	Status OrderStatus `json:"status"`
}

// NewOrder freezes lines into an order owned by userID. The lines are copied
// so later changes to the caller's slice do not leak into the snapshot.
func NewOrder(userID string, lines []CartLine, at time.Time) Order {
	items := make([]CartLine, len(lines))
	copy(items, lines)

	return Order{
		UserID: userID,
		Items:  items,
		Total:  SumLines(items).Round(CurrencyPlaces).InexactFloat64(),
		Date:   at.UTC().Format(time.RFC3339Nano),
		Status: StatusCompleted,
	}
}

// Verify recomputes the total from the line snapshots.
func (o Order) Verify() error {
	want := SumLines(o.Items).Round(CurrencyPlaces)
	if !decimal.NewFromFloat(o.Total).Round(CurrencyPlaces).Equal(want) {
		return fmt.Errorf("%w: total %v, lines sum to %s", ErrOrderTotalMismatch, o.Total, want.StringFixed(CurrencyPlaces))
	}
	return nil
}

// EventKey partitions order events by order id.
func (o Order) EventKey() string { return o.ID.String() }
