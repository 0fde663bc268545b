// Package store is the HTTP adapter for ports.RemoteStore. It speaks the
// json-server dialect: GET /<resource>?field=value, POST /<resource>,
// PATCH /<resource>/<id>, DELETE /<resource>/<id>.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// Ensure Client implements the port at compile time.
var _ ports.RemoteStore = (*Client)(nil)

type Options struct {
	// Timeout bounds every exchange. Zero means no per-call timeout.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long an open breaker rejects calls.
	BreakerCooldown time.Duration
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client is a stateless transport to the data service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("store: parse base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store: unsupported scheme %q", u.Scheme)
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Transport: otelhttp.NewTransport(base)},
		timeout: opts.Timeout,
	}
	if opts.BreakerFailures > 0 {
		c.breaker = newBreaker(u.Host, opts.BreakerFailures, opts.BreakerCooldown)
	}
	return c, nil
}

func (c *Client) FetchCollection(ctx context.Context, resource ports.Resource, filter ports.Filter, out any) error {
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, v)
	}
	body, err := c.exchange(ctx, call{op: ports.OpFetch, resource: resource, method: http.MethodGet, query: q})
	if err != nil {
		return err
	}
	return decode(ports.OpFetch, resource, "", body, out)
}

func (c *Client) CreateRecord(ctx context.Context, resource ports.Resource, body any, out any) error {
	resp, err := c.exchange(ctx, call{op: ports.OpCreate, resource: resource, method: http.MethodPost, body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(ports.OpCreate, resource, "", resp, out)
}

func (c *Client) UpdateRecord(ctx context.Context, resource ports.Resource, id string, patch any) error {
	_, err := c.exchange(ctx, call{op: ports.OpUpdate, resource: resource, id: id, method: http.MethodPatch, body: patch})
	return err
}

func (c *Client) DeleteRecord(ctx context.Context, resource ports.Resource, id string) error {
	_, err := c.exchange(ctx, call{op: ports.OpDelete, resource: resource, id: id, method: http.MethodDelete})
	return err
}

type call struct {
	op       ports.Op
	resource ports.Resource
	id       string
	method   string
	query    url.Values
	body     any
}

func (c *Client) exchange(ctx context.Context, cl call) ([]byte, error) {
	if c.breaker == nil {
		return c.do(ctx, cl)
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, cl)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ports.TransportError{Op: cl.op, Resource: cl.resource, ID: cl.id, Err: ports.ErrCircuitOpen}
	}
	return body, err
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	fail := func(status int, err error) error {
		return &ports.TransportError{Op: cl.op, Resource: cl.resource, ID: cl.id, StatusCode: status, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fail(0, fmt.Errorf("encode request body: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl), reqBody)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("%w: %v", ports.ErrMalformedResponse, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, ports.ErrUnexpectedStatus)
	}
	return body, nil
}

func (c *Client) endpoint(cl call) string {
	u := *c.baseURL
	u.Path = u.Path + "/" + url.PathEscape(string(cl.resource))
	if cl.id != "" {
		u.Path += "/" + url.PathEscape(cl.id)
	}
	u.RawPath = ""
	u.RawQuery = cl.query.Encode()
	return u.String()
}

func decode(op ports.Op, resource ports.Resource, id string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ports.TransportError{
			Op:       op,
			Resource: resource,
			ID:       id,
			Err:      fmt.Errorf("%w: %v", ports.ErrMalformedResponse, err),
		}
	}
	return nil
}
