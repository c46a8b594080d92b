// Package bus implements an asynchronous request/response correlator: it
// generates a request ID per outgoing render, sends an envelope to the
// remote executor through an implementation-agnostic Transport, and
// correlates the eventual Response by ID with a deadline and
// cancellation support.
//
// The correlation map plus per-request context.CancelFunc follows the
// common Go pattern of using context.Context to bound and terminate a
// running call: cancelling or timing out the context deterministically
// terminates the wait and yields a distinguishable error. Here the same
// context drives a pending awaiter instead of a running call, since the
// actual computation happens across a process boundary this package does
// not control.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
)

// Kind identifies the category of an outgoing request.
type Kind string

const (
	KindRender     Kind = "render"
	KindParameters Kind = "parameters"
	KindCapability Kind = "capability"
)

// Request is the envelope sent to the remote executor.
type Request struct {
	ID          uuid.UUID
	Kind        Kind
	SCAD        string
	Fingerprint fingerprint.Fingerprint
	Deadline    time.Duration
}

// Status identifies the category of an incoming response.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusProgress Status = "progress"
)

// Response is what the remote executor sends back.
type Response struct {
	ID      uuid.UUID
	Status  Status
	STL     []byte
	Err     *errkind.RenderError
	Timings map[string]time.Duration
}

// Transport sends an envelope to the remote executor. It must not block
// waiting for the response; Bus handles correlation separately. This is
// the "implementation-agnostic channel (typed messages on the widget sync
// layer).
type Transport interface {
	Send(ctx context.Context, req Request) error
}

type pending struct {
	ch     chan Response
	cancel context.CancelFunc
}

// Bus is the C6 Async Message Bus.
type Bus struct {
	transport Transport

	mu      sync.Mutex
	pending map[uuid.UUID]*pending

	onUnknownID func(id uuid.UUID)
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithUnknownIDHandler installs a callback invoked when Deliver receives a
// Response whose ID has no pending awaiter; such responses are dropped
// and should be logged by the caller.
func WithUnknownIDHandler(f func(id uuid.UUID)) Option {
	return func(b *Bus) { b.onUnknownID = f }
}

// New constructs a Bus that sends envelopes through transport.
func New(transport Transport, opts ...Option) *Bus {
	b := &Bus{
		transport: transport,
		pending:   make(map[uuid.UUID]*pending),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Dispatch sends a new render request for scad/fp and returns a
// correlated awaiter. The caller must eventually call either the returned
// cancel func (on supersession) or let the deadline elapse; Await drains
// either path.
//
// Duplicate fingerprints cannot reach Dispatch concurrently because the
// cache's single-flight gate coalesces them upstream; Dispatch always
// allocates a fresh UUID regardless.
func (b *Bus) Dispatch(ctx context.Context, kind Kind, scad string, fp fingerprint.Fingerprint, deadline time.Duration) (uuid.UUID, func(), error) {
	id := uuid.New()
	ctx, cancel := context.WithCancel(ctx)

	p := &pending{ch: make(chan Response, 1), cancel: cancel}

	b.mu.Lock()
	b.pending[id] = p
	b.mu.Unlock()

	req := Request{ID: id, Kind: kind, SCAD: scad, Fingerprint: fp, Deadline: deadline}
	if err := b.transport.Send(ctx, req); err != nil {
		b.remove(id)
		cancel()
		return uuid.Nil, func() {}, err
	}

	return id, func() { b.cancelPending(id) }, nil
}

// Await blocks until the response for id arrives, the deadline elapses,
// or the caller's cancel func (returned by Dispatch) runs; in the last
// case the returned Response has StatusError and a Cancelled Err.
func (b *Bus) Await(ctx context.Context, id uuid.UUID, deadline time.Duration) (Response, error) {
	b.mu.Lock()
	p, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return Response{}, errkind.New(errkind.Unknown, "", "await: unknown request id", nil)
	}

	if deadline <= 0 {
		b.remove(id)
		p.cancel()
		return Response{}, errkind.New(errkind.Timeout, "", "deadline of 0 elapses immediately", nil)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-p.ch:
		b.remove(id)
		return resp, nil
	case <-timer.C:
		b.remove(id)
		p.cancel()
		return Response{}, errkind.New(errkind.Timeout, "", "render deadline exceeded", nil)
	case <-ctx.Done():
		b.remove(id)
		p.cancel()
		return Response{}, errkind.New(errkind.Cancelled, "", "caller context done", ctx.Err())
	}
}

// Deliver matches an incoming Response to its awaiter by ID. At most one
// awaiter ever receives a given response; unknown IDs invoke the
// configured handler and are otherwise dropped silently.
func (b *Bus) Deliver(resp Response) {
	b.mu.Lock()
	p, ok := b.pending[resp.ID]
	b.mu.Unlock()
	if !ok {
		if b.onUnknownID != nil {
			b.onUnknownID(resp.ID)
		}
		return
	}
	select {
	case p.ch <- resp:
	default:
		// Already delivered or cancelled; at-most-once delivery holds.
	}
}

// cancelPending removes id's awaiter, hands a blocked Await a Cancelled
// marker, and cancels its context, freeing resources without surfacing
// an error to the host.
func (b *Bus) cancelPending(id uuid.UUID) {
	b.mu.Lock()
	p, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok {
		select {
		case p.ch <- Response{ID: id, Status: StatusError, Err: errkind.New(errkind.Cancelled, "", "request superseded", nil)}:
		default:
		}
		p.cancel()
	}
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Pending returns the number of in-flight requests, for tests and
// telemetry.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
