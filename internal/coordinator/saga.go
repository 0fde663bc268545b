package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
)

// Step is a single unit of work in a saga. Compensate undoes Execute and is
// only called for steps that ran before the pivot.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Pivotal is implemented by the step after whose success the saga can no
// longer be rolled back. Later failures are forward-only.
type Pivotal interface {
	Pivotal() bool
}

// ForwardError reports a step that failed after the pivot. Nothing was
// compensated; the caller owns finishing the work.
type ForwardError struct {
	Step string
	Err  error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("step %s failed after pivot: %v", e.Step, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// IsForward reports whether err came from a step after the pivot.
func IsForward(err error) bool {
	var fe *ForwardError
	return errors.As(err, &fe)
}

// Orchestrator runs steps in order and records each transition in the
// checkout log.
type Orchestrator struct {
	sagaID  string
	steps   []Step
	payload string
	repo    sagalog.Repository // nil-safe: transitions are only logged
}

// NewOrchestrator creates a saga. repo may be nil.
func NewOrchestrator(sagaID string, steps []Step, repo sagalog.Repository) *Orchestrator {
	return &Orchestrator{sagaID: sagaID, steps: steps, repo: repo}
}

// WithPayload sets the JSON stored on the STARTED row.
func (o *Orchestrator) WithPayload(payload string) *Orchestrator {
	o.payload = payload
	return o
}

// Start runs the steps sequentially.
//
// A failure before the pivot compensates every successful step in LIFO order
// and returns the step error. A failure after the pivot returns a
// *ForwardError and writes no terminal row; the caller records how the saga
// is to be finished.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var done []Step
	pivoted := false

	for _, step := range o.steps {
		slog.InfoContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())

		if err := step.Execute(ctx); err != nil {
			if pivoted {
				slog.WarnContext(ctx, "saga step failed after pivot", "saga_id", o.sagaID, "step", step.Name(), "error", err)
				return &ForwardError{Step: step.Name(), Err: err}
			}

			slog.ErrorContext(ctx, "saga step failed, starting rollback", "saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs := []string{fmt.Sprintf("%s: %v", step.Name(), err)}
			o.record(ctx, sagalog.StatusCompensating, step.Name(), "", errs)
			errs = append(errs, o.rollback(ctx, done)...)
			o.record(ctx, sagalog.StatusFailed, step.Name(), "", errs)
			return err
		}

		done = append(done, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)

		if p, ok := step.(Pivotal); ok && p.Pivotal() {
			pivoted = true
		}
	}

	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	slog.InfoContext(ctx, "saga completed", "saga_id", o.sagaID)
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []string {
	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate saga step", "saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("compensate %s: %v", step.Name(), err))
		}
	}
	return errs
}

// record appends a row to the log. Log failures never fail the saga.
func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.repo == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.repo.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to write checkout log", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
