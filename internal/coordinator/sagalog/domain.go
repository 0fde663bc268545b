// Package sagalog defines the checkout log: an append-only record of every
// transition a checkout saga goes through.
//
// The log serves two purposes:
//
//  1. Observability: each row carries the trace_id of the request that wrote
//     it, so a checkout can be followed from the log into the trace backend.
//
//  2. Recovery: a checkout whose latest row is PENDING_CART_CLEAR placed its
//     order but left cart lines behind. The reconciler reads those rows and
//     finishes the cleanup.
package sagalog

import "time"

// Status is the lifecycle state of a checkout saga.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"

	// StatusPendingCartClear marks a checkout whose order exists but whose
	// cart still holds lines. Payload lists the line ids left to delete.
	StatusPendingCartClear Status = "PENDING_CART_CLEAR"
)

// Terminal reports whether no further rows are expected for the saga.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SagaLog is one row of the checkout_logs table.
type SagaLog struct {
	// SagaID identifies one checkout run.
	SagaID string

	Status Status

	// CurrentStep is the step that just ran or failed.
	CurrentStep string

	// Payload is JSON. STARTED rows hold the order snapshot; PENDING_CART_CLEAR
	// rows hold the order id and the remaining line ids.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	// TraceID and SpanID come from the span active when the row was written.
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
