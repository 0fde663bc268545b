package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// ErrPartialCheckout marks a checkout whose order was stored while some cart
// lines could not be deleted.
var ErrPartialCheckout = errors.New("order placed but cart not fully cleared")

// maxConcurrentDeletes bounds the fan-out of ClearCartStep.
const maxConcurrentDeletes = 8

// --- AuthorizePaymentStep ---

// AuthorizePaymentStep holds the order amount on the shopper's card. It runs
// before the pivot, so a failed order creation voids it.
type AuthorizePaymentStep struct {
	gateway   ports.PaymentGateway
	reference string
	amount    decimal.Decimal
	card      entity.PaymentCard
	authID    string
}

func NewAuthorizePaymentStep(gateway ports.PaymentGateway, reference string, amount decimal.Decimal, card entity.PaymentCard) *AuthorizePaymentStep {
	return &AuthorizePaymentStep{gateway: gateway, reference: reference, amount: amount, card: card}
}

func (s *AuthorizePaymentStep) Name() string { return "Payment_Authorize_Step" }

func (s *AuthorizePaymentStep) Execute(ctx context.Context) error {
	id, err := s.gateway.Authorize(ctx, s.reference, s.amount, s.card)
	if err != nil {
		return fmt.Errorf("payment authorization: %w", err)
	}
	s.authID = id
	return nil
}

func (s *AuthorizePaymentStep) Compensate(ctx context.Context) error {
	if s.authID == "" {
		return nil
	}
	return s.gateway.Void(ctx, s.authID)
}

// --- CreateOrderStep ---

// CreateOrderStep stores the order snapshot. It is the pivot: orders are
// immutable once created, so there is nothing to compensate.
type CreateOrderStep struct {
	store   ports.RemoteStore
	order   entity.Order
	created entity.Order
}

func NewCreateOrderStep(store ports.RemoteStore, order entity.Order) *CreateOrderStep {
	return &CreateOrderStep{store: store, order: order}
}

func (s *CreateOrderStep) Name() string { return "Create_Order_Step" }

func (s *CreateOrderStep) Pivotal() bool { return true }

func (s *CreateOrderStep) Execute(ctx context.Context) error {
	var created entity.Order
	if err := s.store.CreateRecord(ctx, ports.ResourceOrders, s.order, &created); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	// The service echoes the record; keep our snapshot and take only its id.
	s.created = s.order
	s.created.ID = created.ID
	return nil
}

func (s *CreateOrderStep) Compensate(context.Context) error { return nil }

// Created is the stored order. Valid after Execute succeeds.
func (s *CreateOrderStep) Created() entity.Order { return s.created }

// --- ClearCartStep ---

// ClearCartStep deletes every listed cart line concurrently and waits for all
// deletions to settle. A line that is already gone counts as deleted.
type ClearCartStep struct {
	store   ports.RemoteStore
	lineIDs []string

	mu        sync.Mutex
	remaining []string
}

func NewClearCartStep(store ports.RemoteStore, lineIDs []string) *ClearCartStep {
	return &ClearCartStep{store: store, lineIDs: lineIDs}
}

func (s *ClearCartStep) Name() string { return "Clear_Cart_Step" }

func (s *ClearCartStep) Execute(ctx context.Context) error {
	var (
		g    errgroup.Group
		errs []error
	)
	g.SetLimit(maxConcurrentDeletes)

	s.mu.Lock()
	s.remaining = nil
	s.mu.Unlock()

	for _, id := range s.lineIDs {
		g.Go(func() error {
			err := s.store.DeleteRecord(ctx, ports.ResourceCart, id)
			if err == nil || ports.IsNotFound(err) {
				return nil
			}
			s.mu.Lock()
			s.remaining = append(s.remaining, id)
			errs = append(errs, err)
			s.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return nil
	}
	return &PartialClearError{Remaining: s.Remaining(), Errs: errs}
}

// Compensate is a no-op; deleted lines are not restored.
func (s *ClearCartStep) Compensate(context.Context) error { return nil }

// Remaining lists, sorted, the lines the last Execute failed to delete.
func (s *ClearCartStep) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]string(nil), s.remaining...)
	sort.Strings(out)
	return out
}

// PartialClearError is returned by ClearCartStep when some deletions failed.
// It matches ErrPartialCheckout and each underlying error.
type PartialClearError struct {
	Remaining []string
	Errs      []error
}

func (e *PartialClearError) Error() string {
	return fmt.Sprintf("%v: %d line(s) left: %s", ErrPartialCheckout, len(e.Remaining), strings.Join(e.Remaining, ", "))
}

func (e *PartialClearError) Unwrap() []error {
	return append([]error{ErrPartialCheckout}, e.Errs...)
}

// Messages flattens Errs for the checkout log.
func (e *PartialClearError) Messages() []string {
	out := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err.Error()
	}
	return out
}

func lineIDs(lines []entity.CartLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID.String()
	}
	return ids
}
