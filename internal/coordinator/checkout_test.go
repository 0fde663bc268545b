package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/cache"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/cart"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/payment"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/adapters/store/memstore"
)

var shopper = &entity.User{ID: "u1", Email: "ana@example.com"}

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	orders []entity.Order
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if o, ok := event.(entity.Order); ok {
		p.orders = append(p.orders, o)
	}
	return nil
}

// fixture seeds a two-line cart worth 35 and returns a loaded cart manager.
func fixture(t *testing.T) (*memstore.Store, *cart.Manager) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Seed(ports.ResourceCart,
		entity.CartLine{ID: "1", Title: "Mug", Price: 10, Quantity: 2},
		entity.CartLine{ID: "2", Title: "Cap", Price: 5, Quantity: 3},
	))
	m := cart.NewManager(store, nil)
	require.NoError(t, m.Reload(context.Background()))
	store.ResetCalls()
	return store, m
}

func storedOrders(t *testing.T, store *memstore.Store) []entity.Order {
	t.Helper()
	var orders []entity.Order
	require.NoError(t, store.FetchCollection(context.Background(), ports.ResourceOrders, nil, &orders))
	return orders
}

func TestCheckout_RequiresUser(t *testing.T) {
	store, m := fixture(t)

	res, err := NewCheckout(store, nil, nil, nil, "").Run(context.Background(), nil, m.Lines(), "")

	require.ErrorIs(t, err, entity.ErrAuthRequired)
	assert.Nil(t, res)
	assert.Empty(t, store.Calls())
}

func TestCheckout_PlacesOrderAndClearsCart(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	repo := openRepo(t)
	pub := &capturePublisher{}
	co := NewCheckout(store, repo, nil, pub, "orders.completed")
	co.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	res, err := co.Run(ctx, shopper, m.Lines(), "")
	require.NoError(t, err)

	assert.True(t, res.Consistent())
	assert.Equal(t, 35.0, res.Order.Total)
	assert.Equal(t, entity.StatusCompleted, res.Order.Status)
	assert.Equal(t, "u1", res.Order.UserID)
	assert.Equal(t, "2024-06-01T12:00:00Z", res.Order.Date)
	assert.NotEmpty(t, res.Order.ID)
	require.NoError(t, res.Order.Verify())

	calls := store.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, ports.OpCreate, calls[0].Op, "order is stored before any deletion")
	assert.Equal(t, ports.OpDelete, calls[1].Op)
	assert.Equal(t, ports.OpDelete, calls[2].Op)

	require.NoError(t, m.Reload(ctx))
	assert.Empty(t, m.Lines())

	orders := storedOrders(t, store)
	require.Len(t, orders, 1)
	assert.Equal(t, 35.0, orders[0].Total)
	assert.Len(t, orders[0].Items, 2)

	assert.Equal(t, []string{"orders.completed"}, pub.topics)
	assert.Equal(t, res.Order.ID, pub.orders[0].ID)

	assert.Empty(t, mustPending(t, repo))
}

func TestCheckout_OrderFailureLeavesCartAlone(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	store.FailOn(ports.OpCreate, ports.ResourceOrders, "", errors.New("orders down"))
	before := m.Lines()

	res, err := NewCheckout(store, openRepo(t), nil, nil, "").Run(ctx, shopper, m.Lines(), "")

	require.ErrorIs(t, err, ports.ErrTransport)
	assert.Nil(t, res)
	assert.Zero(t, store.CallCount(ports.OpDelete))

	require.NoError(t, m.Reload(ctx))
	assert.Equal(t, before, m.Lines())
	assert.Empty(t, storedOrders(t, store))
}

func TestCheckout_PartialClearKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	repo := openRepo(t)
	store.FailOn(ports.OpDelete, ports.ResourceCart, "2", errors.New("line locked"))

	res, err := NewCheckout(store, repo, nil, nil, "").Run(ctx, shopper, m.Lines(), "")
	require.NoError(t, err)

	assert.False(t, res.Consistent())
	assert.Equal(t, []string{"2"}, res.UnclearedLines)
	assert.Equal(t, 35.0, res.Order.Total)

	orders := storedOrders(t, store)
	require.Len(t, orders, 1)
	assert.Equal(t, 35.0, orders[0].Total)

	require.NoError(t, m.Reload(ctx))
	require.Len(t, m.Lines(), 1)
	assert.Equal(t, entity.ID("2"), m.Lines()[0].ID)

	pending := mustPending(t, repo)
	require.Len(t, pending, 1)
	var p pendingClear
	require.NoError(t, json.Unmarshal([]byte(pending[0].Payload), &p))
	assert.Equal(t, []string{"2"}, p.LineIDs)
	assert.Equal(t, res.Order.ID.String(), p.OrderID)
}

func TestCheckout_AlreadyDeletedLineCountsAsCleared(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	lines := m.Lines()
	require.NoError(t, store.DeleteRecord(ctx, ports.ResourceCart, "1"))

	res, err := NewCheckout(store, nil, nil, nil, "").Run(ctx, shopper, lines, "")
	require.NoError(t, err)
	assert.True(t, res.Consistent())
}

func TestCheckout_ReplaysByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(mr.Addr(), "storefront")
	co := NewCheckout(store, nil, c, nil, "")

	first, err := co.Run(ctx, shopper, m.Lines(), "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.True(t, mr.Exists("storefront:checkout:u1:key-1"))
	store.ResetCalls()

	second, err := co.Run(ctx, shopper, m.Lines(), "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order, second.Order)
	assert.Empty(t, store.Calls())
	assert.Len(t, storedOrders(t, store), 1)
}

func TestCheckout_IdempotencyKeyIsPerUser(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	mr := miniredis.RunT(t)
	co := NewCheckout(store, nil, cache.NewRedisCache(mr.Addr(), "storefront"), nil, "")
	other := &entity.User{ID: "u2", Email: "bo@example.com"}

	first, err := co.Run(ctx, shopper, m.Lines(), "k")
	require.NoError(t, err)

	otherLines := []entity.CartLine{{ID: "7", Title: "Pen", Price: 2, Quantity: 1}}
	second, err := co.Run(ctx, other, otherLines, "k")
	require.NoError(t, err)

	assert.False(t, second.Replayed)
	assert.Equal(t, "u2", second.Order.UserID)
	assert.Equal(t, 2.0, second.Order.Total)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Len(t, storedOrders(t, store), 2)

	_, ok := co.Replay(ctx, other, "k")
	assert.True(t, ok)
	replay, ok := co.Replay(ctx, shopper, "k")
	require.True(t, ok)
	assert.Equal(t, first.Order.ID, replay.Order.ID)
}

// heldOrders parks the first order creation until release is closed.
type heldOrders struct {
	*memstore.Store
	entered chan struct{}
	release chan struct{}
}

func (s *heldOrders) CreateRecord(ctx context.Context, resource ports.Resource, body any, out any) error {
	if resource == ports.ResourceOrders {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.release
	}
	return s.Store.CreateRecord(ctx, resource, body, out)
}

func TestCheckout_ConcurrentSameKeyRunsOnce(t *testing.T) {
	ctx := context.Background()
	base, m := fixture(t)
	store := &heldOrders{Store: base, entered: make(chan struct{}, 1), release: make(chan struct{})}
	co := NewCheckout(store, nil, nil, nil, "")

	var leader, follower *CheckoutResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := co.Run(ctx, shopper, m.Lines(), "k2")
		assert.NoError(t, err)
		leader = res
	}()
	<-store.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := co.Run(ctx, shopper, m.Lines(), "k2")
		assert.NoError(t, err)
		follower = res
	}()
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	require.NotNil(t, leader)
	require.NotNil(t, follower)
	assert.False(t, leader.Replayed)
	assert.True(t, follower.Replayed)
	assert.Equal(t, leader.Order.ID, follower.Order.ID)
	assert.Len(t, storedOrders(t, base), 1)
}

func TestCheckout_EmptyCartIsNotBlocked(t *testing.T) {
	store := memstore.New()

	res, err := NewCheckout(store, nil, nil, nil, "").Run(context.Background(), shopper, nil, "")
	require.NoError(t, err)
	assert.Zero(t, res.Order.Total)
	assert.Equal(t, 1, store.CallCount(ports.OpCreate))
}

func mustPending(t *testing.T, repo sagalog.Repository) []*sagalog.SagaLog {
	t.Helper()
	pending, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	return pending
}

func TestCheckout_PaymentVoidedWhenOrderFails(t *testing.T) {
	ctx := context.Background()
	store, m := fixture(t)
	repo := openRepo(t)
	gateway := payment.NewSimulator(decimal.Zero)
	store.FailOn(ports.OpCreate, ports.ResourceOrders, "", errors.New("orders down"))

	card := &entity.PaymentCard{Number: "4242424242424242", Holder: "Ana"}
	_, err := NewCheckout(store, repo, nil, nil, "").WithPayments(gateway).RunWithPayment(ctx, shopper, m.Lines(), "", card)

	require.ErrorIs(t, err, ports.ErrTransport)
	assert.Zero(t, gateway.Held(), "authorization voided")
	assert.Zero(t, store.CallCount(ports.OpDelete))
}

func TestCheckout_DeclinedPaymentPlacesNothing(t *testing.T) {
	store, m := fixture(t)
	gateway := payment.NewSimulator(decimal.NewFromInt(20))

	card := &entity.PaymentCard{Number: "4242424242424242", Holder: "Ana"}
	_, err := NewCheckout(store, nil, nil, nil, "").WithPayments(gateway).RunWithPayment(context.Background(), shopper, m.Lines(), "", card)

	require.ErrorIs(t, err, entity.ErrPaymentDeclined)
	assert.Empty(t, store.Calls())
}

func TestCheckout_PaymentHeldAfterSuccess(t *testing.T) {
	store, m := fixture(t)
	gateway := payment.NewSimulator(decimal.Zero)

	card := &entity.PaymentCard{Number: "4242424242424242", Holder: "Ana"}
	res, err := NewCheckout(store, nil, nil, nil, "").WithPayments(gateway).RunWithPayment(context.Background(), shopper, m.Lines(), "", card)

	require.NoError(t, err)
	assert.True(t, res.Consistent())
	assert.Equal(t, 1, gateway.Held())
}
