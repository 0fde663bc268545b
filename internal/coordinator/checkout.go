package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// IdempotencyTTL is how long a checkout result is replayable by key.
const IdempotencyTTL = 24 * time.Hour

// CheckoutResult is the outcome of a checkout that placed an order.
type CheckoutResult struct {
	Order entity.Order `json:"order"`

	// UnclearedLines are cart lines that survived the checkout. They are
	// recorded as pending and deleted later by the Reconciler.
	UnclearedLines []string `json:"unclearedLines,omitempty"`

	// Replayed is set when the result came from an earlier checkout with the
	// same idempotency key.
	Replayed bool `json:"replayed"`
}

// Consistent reports whether the cart was fully cleared.
func (r *CheckoutResult) Consistent() bool { return len(r.UnclearedLines) == 0 }

// pendingClear is the payload of a PENDING_CART_CLEAR row.
type pendingClear struct {
	OrderID string   `json:"orderId"`
	LineIDs []string `json:"lineIds"`
}

// Checkout places an order for the given cart lines and clears them from the
// cart. Order creation is the pivot of the saga: once it succeeds the order
// stands, whatever happens to the cart.
type Checkout struct {
	store     ports.RemoteStore
	repo      sagalog.Repository   // nil-safe
	cache     cache.Cache          // nil-safe
	publisher ports.EventPublisher // nil-safe
	payments  ports.PaymentGateway // nil-safe: cards are not authorized
	topic     string
	now       func() time.Time
	inflight  singleflight.Group
}

func NewCheckout(
	store ports.RemoteStore,
	repo sagalog.Repository,
	c cache.Cache,
	publisher ports.EventPublisher,
	topic string,
) *Checkout {
	return &Checkout{
		store:     store,
		repo:      repo,
		cache:     c,
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
	}
}

// WithPayments makes checkouts that carry a card authorize it first.
func (c *Checkout) WithPayments(gateway ports.PaymentGateway) *Checkout {
	c.payments = gateway
	return c
}

// Run checks out lines for user without payment details.
func (c *Checkout) Run(ctx context.Context, user *entity.User, lines []entity.CartLine, idempotencyKey string) (*CheckoutResult, error) {
	return c.RunWithPayment(ctx, user, lines, idempotencyKey, nil)
}

// RunWithPayment checks out lines for user.
//
// A nil user fails with entity.ErrAuthRequired before any call. A failed
// order creation returns the error with the cart untouched. Failed line
// deletions do not fail the checkout: the result lists them in
// UnclearedLines. Concurrent or repeated calls with the same non-empty
// idempotencyKey share one checkout.
//
// When card is set and a payment gateway is configured, the order amount is
// authorized before the order is stored and voided if storing fails.
func (c *Checkout) RunWithPayment(ctx context.Context, user *entity.User, lines []entity.CartLine, idempotencyKey string, card *entity.PaymentCard) (*CheckoutResult, error) {
	if user == nil {
		return nil, entity.ErrAuthRequired
	}
	if idempotencyKey == "" {
		return c.run(ctx, user, lines, "", card)
	}

	if res, ok := c.Replay(ctx, user, idempotencyKey); ok {
		return res, nil
	}

	key := scopedKey(user, idempotencyKey)
	led := false
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		led = true
		return c.run(ctx, user, lines, key, card)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*CheckoutResult)
	res.Replayed = !led
	return &res, nil
}

// scopedKey binds an idempotency key to its user so equal keys from
// different users never share a checkout.
func scopedKey(user *entity.User, key string) string {
	return user.ID + ":" + key
}

func (c *Checkout) run(ctx context.Context, user *entity.User, lines []entity.CartLine, key string, card *entity.PaymentCard) (*CheckoutResult, error) {
	order := entity.NewOrder(user.ID, lines, c.now())
	sagaID := uuid.NewString()

	createStep := NewCreateOrderStep(c.store, order)
	clearStep := NewClearCartStep(c.store, lineIDs(order.Items))

	steps := []Step{createStep, clearStep}
	if card != nil && c.payments != nil {
		amount := entity.SumLines(order.Items).Round(entity.CurrencyPlaces)
		steps = append([]Step{NewAuthorizePaymentStep(c.payments, sagaID, amount, *card)}, steps...)
	}

	payload, _ := json.Marshal(order)
	saga := NewOrchestrator(sagaID, steps, c.repo).WithPayload(string(payload))

	slog.InfoContext(ctx, "starting checkout", "saga_id", sagaID, "user_id", user.ID, "lines", len(lines), "total", order.Total)

	res := &CheckoutResult{}
	if err := saga.Start(ctx); err != nil {
		var partial *PartialClearError
		if !IsForward(err) || !errors.As(err, &partial) {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		res.UnclearedLines = partial.Remaining
		c.markPending(ctx, sagaID, createStep.Created().ID.String(), partial)
	}
	res.Order = createStep.Created()

	c.remember(ctx, key, res)
	c.announce(ctx, res.Order)
	return res, nil
}

func (c *Checkout) markPending(ctx context.Context, sagaID, orderID string, partial *PartialClearError) {
	slog.WarnContext(ctx, "checkout left cart lines behind",
		"saga_id", sagaID,
		"order_id", orderID,
		"lines", partial.Remaining,
	)
	if c.repo == nil {
		return
	}
	payload, _ := json.Marshal(pendingClear{OrderID: orderID, LineIDs: partial.Remaining})
	entry := sagalog.NewEntry(ctx, sagaID, sagalog.StatusPendingCartClear, "Clear_Cart_Step", string(payload), partial.Messages())
	if err := c.repo.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: pending cart clear not recorded", "saga_id", sagaID, "error", err)
	}
}

// Replay returns the stored result of an earlier checkout by user with key.
func (c *Checkout) Replay(ctx context.Context, user *entity.User, key string) (*CheckoutResult, bool) {
	if c.cache == nil || user == nil || key == "" {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, c.cache.GenerateKey("checkout", scopedKey(user, key)))
	if err != nil {
		slog.WarnContext(ctx, "idempotency lookup failed", "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var res CheckoutResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		slog.WarnContext(ctx, "discarding unreadable idempotency record", "error", err)
		return nil, false
	}
	res.Replayed = true
	return &res, true
}

func (c *Checkout) remember(ctx context.Context, key string, res *CheckoutResult) {
	if c.cache == nil || key == "" {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cache.GenerateKey("checkout", key), string(b), IdempotencyTTL); err != nil {
		slog.WarnContext(ctx, "idempotency record not stored", "error", err)
	}
}

func (c *Checkout) announce(ctx context.Context, order entity.Order) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, c.topic, order); err != nil {
		slog.WarnContext(ctx, "order completed event not published", "order_id", order.ID, "error", err)
	}
}
