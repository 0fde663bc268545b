package ports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Resource names a collection exposed by the data service.
type Resource string

const (
	ResourceCart    Resource = "cart"
	ResourceOrders  Resource = "orders"
	ResourceReviews Resource = "reviews"
)

// Op names a store operation. It is carried in TransportError for logging.
type Op string

const (
	OpFetch  Op = "fetch"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Filter restricts a collection fetch to records whose field equals the value.
type Filter map[string]string

// RemoteStore is a stateless CRUD transport to the data service. Every call
// is a fresh exchange: no retries, no caching. Failures are *TransportError.
type RemoteStore interface {
	// FetchCollection decodes the records of resource matching filter into out.
	FetchCollection(ctx context.Context, resource Resource, filter Filter, out any) error
	// CreateRecord posts body and decodes the created record into out (may be nil).
	CreateRecord(ctx context.Context, resource Resource, body any, out any) error
	// UpdateRecord applies a partial update to the record id.
	UpdateRecord(ctx context.Context, resource Resource, id string, patch any) error
	DeleteRecord(ctx context.Context, resource Resource, id string) error
}

var (
	// ErrTransport matches every *TransportError via errors.Is.
	ErrTransport = errors.New("store transport error")

	ErrUnexpectedStatus  = errors.New("unexpected status code")
	ErrMalformedResponse = errors.New("malformed response body")
	ErrCircuitOpen       = errors.New("store circuit open")
)

// TransportError reports a failed or malformed exchange with the data service.
// It is always recoverable.
type TransportError struct {
	Op         Op
	Resource   Resource
	ID         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	target := string(e.Resource)
	if e.ID != "" {
		target += "/" + e.ID
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("store %s %s: status %d: %v", e.Op, target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NotFound reports whether the service answered 404.
func (e *TransportError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsNotFound reports whether err is a TransportError carrying a 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.NotFound()
}
