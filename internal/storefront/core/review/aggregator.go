// Package review keeps the review list of one catalog item and derives its
// aggregate rating.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// Aggregator is bound to at most one item at a time. Load rebinds it; a load
// that finishes after a newer one started is dropped.
type Aggregator struct {
	store ports.RemoteStore
	now   func() time.Time

	mu         sync.RWMutex
	itemID     entity.ID
	generation uint64
	reviews    []entity.Review
}

func NewAggregator(store ports.RemoteStore) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// ErrStaleLoad is returned by Load when its result was discarded because the
// aggregator was rebound meanwhile.
var ErrStaleLoad = errors.New("review load superseded by a newer load")

// Load binds the aggregator to itemID and replaces the list with the item's
// reviews in the order the store returns them. On failure the previous list
// stays.
func (a *Aggregator) Load(ctx context.Context, itemID entity.ID) error {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	if a.itemID != itemID {
		a.itemID = itemID
		a.reviews = nil
	}
	a.mu.Unlock()

	var fetched []entity.Review
	filter := ports.Filter{"productId": itemID.String()}
	if err := a.store.FetchCollection(ctx, ports.ResourceReviews, filter, &fetched); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.generation {
		return ErrStaleLoad
	}
	a.reviews = fetched
	return nil
}

// Submit posts a review of itemID signed by user and reloads the list.
// Validation happens before any call: a nil user yields ErrAuthRequired,
// then rating and comment are checked.
func (a *Aggregator) Submit(ctx context.Context, itemID entity.ID, user *entity.User, rating int, comment string) error {
	if user == nil {
		return entity.ErrAuthRequired
	}
	r, err := entity.NewReview(itemID, *user, rating, comment, a.now())
	if err != nil {
		return err
	}

	if err := a.store.CreateRecord(ctx, ports.ResourceReviews, r, nil); err != nil {
		return err
	}
	if err := a.Load(ctx, itemID); err != nil {
		return fmt.Errorf("reload reviews: %w", err)
	}
	return nil
}

// ItemID is the item the aggregator is currently bound to.
func (a *Aggregator) ItemID() entity.ID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.itemID
}

// Reviews returns a copy of the current list.
func (a *Aggregator) Reviews() []entity.Review {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]entity.Review, len(a.reviews))
	copy(out, a.reviews)
	return out
}

func (a *Aggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.reviews)
}

// Average is AverageRating over the current list. It is recomputed on each
// call.
func (a *Aggregator) Average() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AverageRating(a.reviews)
}

// AverageRating is the unrounded mean rating, or 0 for no reviews.
func AverageRating(reviews []entity.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}
