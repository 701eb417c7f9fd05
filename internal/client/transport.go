package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TransportKind selects how a Client executes requests.
type TransportKind string

const (
	TransportSync  TransportKind = "sync"
	TransportAsync TransportKind = "async"
)

// ResponseHandler consumes a response. The body is closed after it returns.
type ResponseHandler func(*http.Response) error

// Transport executes authenticated requests.
//
// Submit runs the request and hands the response to handle. Synchronous
// transports return handle's error directly, asynchronous ones report it from
// Wait.
type Transport interface {
	Submit(req *http.Request, handle ResponseHandler) error
	Wait() error
}

// SyncTransport executes each request inline.
type SyncTransport struct {
	client *http.Client
}

// Compile-time check to ensure SyncTransport implements Transport
var _ Transport = (*SyncTransport)(nil)

// NewSyncTransport creates a SyncTransport using the given HTTP client.
func NewSyncTransport(client *http.Client) *SyncTransport {
	return &SyncTransport{client: client}
}

// Submit implements Transport.
func (t *SyncTransport) Submit(req *http.Request, handle ResponseHandler) error {
	return do(t.client, req, handle)
}

// Wait implements Transport. Synchronous requests are complete when Submit returns.
func (t *SyncTransport) Wait() error {
	return nil
}

// AsyncTransport executes requests in the background with bounded concurrency.
//
// Requests submitted before a Wait form one batch. A failing request never
// affects its siblings or later batches; Wait reports every error of its batch.
type AsyncTransport struct {
	client *http.Client
	ctx    context.Context
	limit  int

	mu    sync.Mutex
	batch *asyncBatch
}

type asyncBatch struct {
	group errgroup.Group

	mu   sync.Mutex
	errs []error
}

func (b *asyncBatch) record(err error) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

// Compile-time check to ensure AsyncTransport implements Transport
var _ Transport = (*AsyncTransport)(nil)

// NewAsyncTransport creates an AsyncTransport. limit <= 0 means unbounded.
// Requests that have not started when ctx ends fail with ctx's error.
func NewAsyncTransport(ctx context.Context, client *http.Client, limit int) *AsyncTransport {
	return &AsyncTransport{client: client, ctx: ctx, limit: limit}
}

// Submit implements Transport. It blocks only while the concurrency limit is reached.
func (t *AsyncTransport) Submit(req *http.Request, handle ResponseHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.batch == nil {
		t.batch = &asyncBatch{}
		if t.limit > 0 {
			t.batch.group.SetLimit(t.limit)
		}
	}

	batch := t.batch
	batch.group.Go(func() error {
		if err := t.ctx.Err(); err != nil {
			batch.record(fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err))
			return nil
		}
		if err := do(t.client, req, handle); err != nil {
			batch.record(err)
		}
		return nil
	})
	return nil
}

// Wait blocks until the current batch finished and returns its joined errors.
// The next Submit starts a new batch.
func (t *AsyncTransport) Wait() error {
	t.mu.Lock()
	batch := t.batch
	t.batch = nil
	t.mu.Unlock()

	if batch == nil {
		return nil
	}
	_ = batch.group.Wait()
	return errors.Join(batch.errs...)
}

func do(client *http.Client, req *http.Request, handle ResponseHandler) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if handle == nil {
		return nil
	}
	return handle(resp)
}
