// Package memstore is an in-memory ports.RemoteStore. It backs the gateway
// when STORE_URL is memory:// and serves as the data service in tests, where
// it records every call and can be told to fail specific ones.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// Ensure Store implements the port at compile time.
var _ ports.RemoteStore = (*Store)(nil)

// Call is one recorded store invocation.
type Call struct {
	Op       ports.Op
	Resource ports.Resource
	ID       string
}

type failureKey struct {
	op       ports.Op
	resource ports.Resource
	id       string
}

type record map[string]any

// Store keeps each collection as an ordered list of JSON objects.
type Store struct {
	mu          sync.Mutex
	collections map[ports.Resource][]record
	nextID      int
	calls       []Call
	failures    map[failureKey]error
}

func New() *Store {
	return &Store{
		collections: make(map[ports.Resource][]record),
		failures:    make(map[failureKey]error),
		nextID:      1,
	}
}

// Seed appends records to resource without recording a call. Records without
// an "id" get one assigned.
func (s *Store) Seed(resource ports.Resource, records ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		rec, err := toRecord(r)
		if err != nil {
			return err
		}
		s.assignID(rec)
		s.collections[resource] = append(s.collections[resource], rec)
	}
	return nil
}

// FailOn makes the next and every later op on resource/id fail with err.
// An empty id matches every record of the resource. A nil err clears it.
func (s *Store) FailOn(op ports.Op, resource ports.Resource, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := failureKey{op: op, resource: resource, id: id}
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Calls returns a copy of the recorded calls in arrival order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts recorded calls of op.
func (s *Store) CallCount(op ports.Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Len is the number of records in resource.
func (s *Store) Len(resource ports.Resource) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[resource])
}

func (s *Store) FetchCollection(ctx context.Context, resource ports.Resource, filter ports.Filter, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, ports.OpFetch, resource, ""); err != nil {
		return err
	}

	matched := make([]record, 0, len(s.collections[resource]))
	for _, rec := range s.collections[resource] {
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}
	return s.decode(ports.OpFetch, resource, "", matched, out)
}

func (s *Store) CreateRecord(ctx context.Context, resource ports.Resource, body any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, ports.OpCreate, resource, ""); err != nil {
		return err
	}

	rec, err := toRecord(body)
	if err != nil {
		return &ports.TransportError{Op: ports.OpCreate, Resource: resource, Err: err}
	}
	s.assignID(rec)
	s.collections[resource] = append(s.collections[resource], rec)

	if out == nil {
		return nil
	}
	return s.decode(ports.OpCreate, resource, "", rec, out)
}

func (s *Store) UpdateRecord(ctx context.Context, resource ports.Resource, id string, patch any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, ports.OpUpdate, resource, id); err != nil {
		return err
	}

	idx := s.indexOf(resource, id)
	if idx < 0 {
		return notFound(ports.OpUpdate, resource, id)
	}
	fields, err := toRecord(patch)
	if err != nil {
		return &ports.TransportError{Op: ports.OpUpdate, Resource: resource, ID: id, Err: err}
	}
	rec := s.collections[resource][idx]
	for k, v := range fields {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, resource ports.Resource, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx, ports.OpDelete, resource, id); err != nil {
		return err
	}

	idx := s.indexOf(resource, id)
	if idx < 0 {
		return notFound(ports.OpDelete, resource, id)
	}
	recs := s.collections[resource]
	s.collections[resource] = append(recs[:idx:idx], recs[idx+1:]...)
	return nil
}

// begin records the call and applies injected failures. Callers hold s.mu.
func (s *Store) begin(ctx context.Context, op ports.Op, resource ports.Resource, id string) error {
	s.calls = append(s.calls, Call{Op: op, Resource: resource, ID: id})

	if err := ctx.Err(); err != nil {
		return &ports.TransportError{Op: op, Resource: resource, ID: id, Err: err}
	}
	for _, key := range []failureKey{{op, resource, id}, {op, resource, ""}} {
		if err, ok := s.failures[key]; ok {
			return &ports.TransportError{Op: op, Resource: resource, ID: id, StatusCode: http.StatusServiceUnavailable, Err: err}
		}
	}
	return nil
}

func (s *Store) assignID(rec record) {
	if id, ok := rec["id"]; ok && id != nil && fmt.Sprint(id) != "" {
		return
	}
	rec["id"] = strconv.Itoa(s.nextID)
	s.nextID++
}

func (s *Store) indexOf(resource ports.Resource, id string) int {
	for i, rec := range s.collections[resource] {
		if fmt.Sprint(rec["id"]) == id {
			return i
		}
	}
	return -1
}

func (s *Store) decode(op ports.Op, resource ports.Resource, id string, v any, out any) error {
	b, err := json.Marshal(v)
	if err == nil {
		err = json.Unmarshal(b, out)
	}
	if err != nil {
		return &ports.TransportError{Op: op, Resource: resource, ID: id, Err: fmt.Errorf("%w: %v", ports.ErrMalformedResponse, err)}
	}
	return nil
}

func matches(rec record, filter ports.Filter) bool {
	for k, want := range filter {
		if fmt.Sprint(rec[k]) != want {
			return false
		}
	}
	return true
}

func notFound(op ports.Op, resource ports.Resource, id string) error {
	return &ports.TransportError{Op: op, Resource: resource, ID: id, StatusCode: http.StatusNotFound, Err: ports.ErrUnexpectedStatus}
}

// toRecord round-trips v through JSON so stored records look exactly like
// what the HTTP service would hold.
func toRecord(v any) (record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode record: %w", err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("memstore: record must be a JSON object: %w", err)
	}
	return rec, nil
}
