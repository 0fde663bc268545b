// Package cart holds the session's view of the cart collection. The view is
// only ever replaced by a full fetch from the data service; mutations go to
// the service first and are followed by a reload.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// Manager owns the in-memory cart view. It is safe for concurrent use; two
// overlapping mutations race and the last reload to finish wins.
type Manager struct {
	store     ports.RemoteStore
	publisher ports.EventPublisher // nil disables change events
	now       func() time.Time

	mu     sync.RWMutex
	lines  []entity.CartLine
	loaded bool
}

func NewManager(store ports.RemoteStore, publisher ports.EventPublisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Reload fetches the whole cart and replaces the view. On failure the
// previous view is kept and the TransportError is returned.
func (m *Manager) Reload(ctx context.Context) error {
	_, err := m.reload(ctx)
	return err
}

// reload reports whether the view changed.
func (m *Manager) reload(ctx context.Context) (bool, error) {
	var fetched []entity.CartLine
	if err := m.store.FetchCollection(ctx, ports.ResourceCart, nil, &fetched); err != nil {
		return false, err
	}
	for _, l := range fetched {
		if err := l.Validate(); err != nil {
			return false, &ports.TransportError{
				Op:       ports.OpFetch,
				Resource: ports.ResourceCart,
				ID:       l.ID.String(),
				Err:      fmt.Errorf("%w: cart line %q: %w", ports.ErrMalformedResponse, l.ID, err),
			}
		}
	}

	m.mu.Lock()
	changed := !m.loaded || !sameLines(m.lines, fetched)
	m.lines = fetched
	m.loaded = true
	m.mu.Unlock()

	return changed, nil
}

// SetQuantity stores q for line id and reloads. A q below 1 is rejected with
// entity.ErrInvalidQuantity before any call is made; removal goes through
// Remove instead.
func (m *Manager) SetQuantity(ctx context.Context, id entity.ID, q int) error {
	if q < 1 {
		return entity.ErrInvalidQuantity
	}
	if err := m.store.UpdateRecord(ctx, ports.ResourceCart, id.String(), map[string]int{"quantity": q}); err != nil {
		return err
	}
	return m.afterMutation(ctx)
}

// Remove deletes line id and reloads.
func (m *Manager) Remove(ctx context.Context, id entity.ID) error {
	if err := m.store.DeleteRecord(ctx, ports.ResourceCart, id.String()); err != nil {
		return err
	}
	return m.afterMutation(ctx)
}

// Refresh reloads after a change made outside the manager, such as a
// checkout clearing lines, and notifies subscribers if the view moved.
func (m *Manager) Refresh(ctx context.Context) error {
	changed, err := m.reload(ctx)
	if err != nil {
		return err
	}
	if changed {
		m.notify(ctx)
	}
	return nil
}

// afterMutation reloads and always notifies: the mutation already landed in
// the store even if the reload fails.
func (m *Manager) afterMutation(ctx context.Context) error {
	_, err := m.reload(ctx)
	m.notify(ctx)
	if err != nil {
		return fmt.Errorf("reload after update: %w", err)
	}
	return nil
}

func (m *Manager) notify(ctx context.Context) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, ports.TopicCartChanged, m.Snapshot()); err != nil {
		slog.WarnContext(ctx, "cart change event not delivered", "error", err)
	}
}

// Lines returns a copy of the current view.
func (m *Manager) Lines() []entity.CartLine {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]entity.CartLine, len(m.lines))
	copy(out, m.lines)
	return out
}

// Count is the number of distinct lines, which is what the cart badge shows.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lines)
}

// Units is the sum of quantities.
func (m *Manager) Units() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return entity.CountUnits(m.lines)
}

// Total is the unrounded sum of price × quantity. Use money.Format to show it.
func (m *Manager) Total() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return entity.SumLines(m.lines)
}

// Snapshot summarises the view as a change event.
func (m *Manager) Snapshot() ports.CartChanged {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ports.CartChanged{
		Lines: len(m.lines),
		Units: entity.CountUnits(m.lines),
		Total: money.Format(entity.SumLines(m.lines)),
		At:    m.now().UTC(),
	}
}

func sameLines(a, b []entity.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
