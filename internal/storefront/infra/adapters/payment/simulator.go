// Package payment simulates a card gateway. No money moves; authorizations
// live in memory so the checkout saga has something to void.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

var _ ports.PaymentGateway = (*Simulator)(nil)

type authorization struct {
	reference string
	amount    decimal.Decimal
}

type Simulator struct {
	declineAbove decimal.Decimal

	mu    sync.Mutex
	holds map[string]authorization
}

// NewSimulator declines amounts strictly above declineAbove. A zero limit
// approves everything.
func NewSimulator(declineAbove decimal.Decimal) *Simulator {
	return &Simulator{
		declineAbove: declineAbove,
		holds:        make(map[string]authorization),
	}
}

func (s *Simulator) Authorize(ctx context.Context, reference string, amount decimal.Decimal, card entity.PaymentCard) (string, error) {
	if err := card.Validate(); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "authorizing payment", "reference", reference, "amount", amount.StringFixed(2), "card_last4", card.Last4())

	if s.declineAbove.IsPositive() && amount.GreaterThan(s.declineAbove) {
		slog.WarnContext(ctx, "payment declined", "reference", reference, "amount", amount.StringFixed(2), "limit", s.declineAbove.StringFixed(2))
		return "", fmt.Errorf("%w: amount %s exceeds limit", entity.ErrPaymentDeclined, amount.StringFixed(2))
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.holds[id] = authorization{reference: reference, amount: amount}
	s.mu.Unlock()
	return id, nil
}

// Void releases an authorization. Unknown ids are ignored so a retried void
// is harmless.
func (s *Simulator) Void(ctx context.Context, authID string) error {
	s.mu.Lock()
	auth, ok := s.holds[authID]
	delete(s.holds, authID)
	s.mu.Unlock()

	if ok {
		slog.InfoContext(ctx, "payment voided", "reference", auth.reference, "amount", auth.amount.StringFixed(2))
	}
	return nil
}

// Held reports how many authorizations are outstanding.
func (s *Simulator) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}
