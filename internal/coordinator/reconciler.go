package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

const reconcileStep = "Reconcile_Cart_Step"

// Reconciler finishes checkouts that placed an order but left cart lines
// behind. It retries the deletions recorded in PENDING_CART_CLEAR rows until
// they succeed, then marks the saga COMPLETED.
type Reconciler struct {
	store     ports.RemoteStore
	repo      sagalog.Repository
	interval  time.Duration
	onCleared func(ctx context.Context)
}

// NewReconciler builds a reconciler polling repo every interval. onCleared,
// when set, runs after a pass that completed at least one saga.
func NewReconciler(store ports.RemoteStore, repo sagalog.Repository, interval time.Duration, onCleared func(ctx context.Context)) *Reconciler {
	return &Reconciler{store: store, repo: repo, interval: interval, onCleared: onCleared}
}

// Run reconciles once immediately and then on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce processes every pending saga and returns how many were
// completed.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	completed := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		ok, err := r.reconcile(ctx, entry)
		if err != nil {
			slog.ErrorContext(ctx, "reconcile saga", "saga_id", entry.SagaID, "error", err)
			continue
		}
		if ok {
			completed++
		}
	}

	if completed > 0 && r.onCleared != nil {
		r.onCleared(ctx)
	}
	return completed, nil
}

func (r *Reconciler) reconcile(ctx context.Context, entry *sagalog.SagaLog) (bool, error) {
	var p pendingClear
	if err := json.Unmarshal([]byte(entry.Payload), &p); err != nil {
		// An unreadable payload can never be retried; close it out.
		r.save(ctx, entry.SagaID, sagalog.StatusFailed, "", []string{fmt.Sprintf("bad payload: %v", err)})
		return false, fmt.Errorf("decode pending payload: %w", err)
	}

	step := NewClearCartStep(r.store, p.LineIDs)
	err := step.Execute(ctx)

	var partial *PartialClearError
	switch {
	case err == nil:
		slog.InfoContext(ctx, "pending cart clear completed", "saga_id", entry.SagaID, "order_id", p.OrderID, "lines", len(p.LineIDs))
		r.save(ctx, entry.SagaID, sagalog.StatusCompleted, "", nil)
		return true, nil
	case errors.As(err, &partial):
		if len(partial.Remaining) < len(p.LineIDs) {
			p.LineIDs = partial.Remaining
			payload, _ := json.Marshal(p)
			r.save(ctx, entry.SagaID, sagalog.StatusPendingCartClear, string(payload), partial.Messages())
		}
		return false, err
	default:
		return false, err
	}
}

func (r *Reconciler) save(ctx context.Context, sagaID string, status sagalog.Status, payload string, errs []string) {
	if err := r.repo.Save(ctx, sagalog.NewEntry(ctx, sagaID, status, reconcileStep, payload, errs)); err != nil {
		slog.ErrorContext(ctx, "failed to write checkout log", "saga_id", sagaID, "status", status, "error", err)
	}
}
