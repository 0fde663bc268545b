package sagalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetLatest for an unknown saga id.
var ErrNotFound = errors.New("saga not found")

// Repository persists checkout log rows. The coordinator depends on this
// port, not on SQLite.
type Repository interface {
	// Save appends a row. Rows are never updated.
	Save(ctx context.Context, entry *SagaLog) error

	// GetLatest returns the newest row of sagaID or ErrNotFound.
	GetLatest(ctx context.Context, sagaID string) (*SagaLog, error)

	// ListPending returns, oldest first, the newest row of every saga whose
	// newest row is PENDING_CART_CLEAR.
	ListPending(ctx context.Context) ([]*SagaLog, error)
}
