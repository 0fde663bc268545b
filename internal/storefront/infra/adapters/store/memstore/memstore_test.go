package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	var created entity.CartLine
	require.NoError(t, s.CreateRecord(ctx, ports.ResourceCart, entity.CartLine{Title: "Mug", Price: 5, Quantity: 1}, &created))
	assert.NotEmpty(t, created.ID)

	require.NoError(t, s.UpdateRecord(ctx, ports.ResourceCart, created.ID.String(), map[string]int{"quantity": 4}))

	var lines []entity.CartLine
	require.NoError(t, s.FetchCollection(ctx, ports.ResourceCart, nil, &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, "Mug", lines[0].Title)

	require.NoError(t, s.DeleteRecord(ctx, ports.ResourceCart, created.ID.String()))
	assert.Zero(t, s.Len(ports.ResourceCart))
}

func TestStore_DeleteMissingIsNotFound(t *testing.T) {
	s := New()

	err := s.DeleteRecord(context.Background(), ports.ResourceCart, "nope")
	require.Error(t, err)
	assert.True(t, ports.IsNotFound(err))
	assert.ErrorIs(t, err, ports.ErrTransport)
}

func TestStore_FilterMatchesNumericAndStringIDs(t *testing.T) {
	s := New()
	require.NoError(t, s.Seed(ports.ResourceReviews,
		map[string]any{"productId": 3, "rating": 5},
		map[string]any{"productId": "3", "rating": 4},
		map[string]any{"productId": "4", "rating": 1},
	))

	var reviews []entity.Review
	require.NoError(t, s.FetchCollection(context.Background(), ports.ResourceReviews, ports.Filter{"productId": "3"}, &reviews))
	assert.Len(t, reviews, 2)
	assert.Zero(t, s.CallCount(ports.OpCreate), "seeding is not recorded")
}

func TestStore_FailOn(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Seed(ports.ResourceCart,
		map[string]any{"id": "a", "price": 1, "quantity": 1},
		map[string]any{"id": "b", "price": 1, "quantity": 1},
	))
	boom := errors.New("boom")
	s.FailOn(ports.OpDelete, ports.ResourceCart, "b", boom)

	require.NoError(t, s.DeleteRecord(ctx, ports.ResourceCart, "a"))
	err := s.DeleteRecord(ctx, ports.ResourceCart, "b")
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ports.ErrTransport)
	assert.Equal(t, 1, s.Len(ports.ResourceCart))

	s.FailOn(ports.OpDelete, ports.ResourceCart, "b", nil)
	require.NoError(t, s.DeleteRecord(ctx, ports.ResourceCart, "b"))

	assert.Equal(t, []Call{
		{Op: ports.OpDelete, Resource: ports.ResourceCart, ID: "a"},
		{Op: ports.OpDelete, Resource: ports.ResourceCart, ID: "b"},
		{Op: ports.OpDelete, Resource: ports.ResourceCart, ID: "b"},
	}, s.Calls())
}

func TestStore_WildcardFailure(t *testing.T) {
	s := New()
	s.FailOn(ports.OpCreate, ports.ResourceOrders, "", errors.New("down"))

	err := s.CreateRecord(context.Background(), ports.ResourceOrders, map[string]any{"total": 1}, nil)
	require.Error(t, err)
	assert.Zero(t, s.Len(ports.ResourceOrders))
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out []entity.CartLine
	err := New().FetchCollection(ctx, ports.ResourceCart, nil, &out)
	require.ErrorIs(t, err, context.Canceled)
}
