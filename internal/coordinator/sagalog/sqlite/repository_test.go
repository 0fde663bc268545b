package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
)

func openTemp(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_GetLatest(t *testing.T) {
	ctx := context.Background()
	repo := openTemp(t)

	require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, "s1", sagalog.StatusStarted, "", `{"total":35}`, nil)))
	require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, "s1", sagalog.StatusStepDone, "Create_Order_Step", "", nil)))

	got, err := repo.GetLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusStepDone, got.Status)
	assert.Equal(t, "Create_Order_Step", got.CurrentStep)
	assert.Empty(t, got.Payload)
	assert.Equal(t, "[]", got.ErrorMessages)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRepository_GetLatestUnknown(t *testing.T) {
	_, err := openTemp(t).GetLatest(context.Background(), "missing")
	require.ErrorIs(t, err, sagalog.ErrNotFound)
}

func TestRepository_ListPending(t *testing.T) {
	ctx := context.Background()
	repo := openTemp(t)

	save := func(id string, status sagalog.Status, payload string) {
		require.NoError(t, repo.Save(ctx, sagalog.NewEntry(ctx, id, status, "Clear_Cart_Step", payload, []string{"line 2: 503"})))
	}
	save("done", sagalog.StatusPendingCartClear, `{"lineIds":["1"]}`)
	save("done", sagalog.StatusCompleted, "")
	save("open-a", sagalog.StatusPendingCartClear, `{"lineIds":["2"]}`)
	save("ok", sagalog.StatusCompleted, "")
	save("open-b", sagalog.StatusPendingCartClear, `{"lineIds":["3","4"]}`)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "open-a", pending[0].SagaID)
	assert.Equal(t, "open-b", pending[1].SagaID)
	assert.JSONEq(t, `{"lineIds":["3","4"]}`, pending[1].Payload)
	assert.JSONEq(t, `["line 2: 503"]`, pending[1].ErrorMessages)
}
