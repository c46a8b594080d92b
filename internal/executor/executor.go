// Package executor provides a reference implementation of the client-side
// WASM executor contract: recognize the WASM_RENDER_REQUEST sentinel,
// look up the companion SCAD source, run a render function standing in
// for the actual WASM module, enforce a memory ceiling, and normalize
// the result to ASCII STL before returning a response envelope.
//
// Production code never ships this package into the browser — it exists
// so the coordinator and bus can be exercised end-to-end against a fake
// executor in tests instead of a real browser embedder.
package executor

import (
	"context"

	"github.com/kuelshammer/marimo-openscad-render/internal/bus"
	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/sentinel"
	"github.com/kuelshammer/marimo-openscad-render/internal/stl"
)

// DefaultMemoryCeiling is the default per-render memory budget (2 GiB).
const DefaultMemoryCeiling = 2 << 30

// RunFunc stands in for executing the WASM module against scad, returning
// raw STL bytes (ASCII or binary) or an error.
type RunFunc func(ctx context.Context, scad string) ([]byte, error)

// SourceLookup resolves the SCAD source published alongside a sentinel,
// modeling the "companion scad_code trait" the real executor reads from
// the widget sync layer.
type SourceLookup func(fp uint64) (string, bool)

// Fake is an in-process stand-in for the browser-side executor. It wires
// directly to a Bus so tests can dispatch a request and observe the
// Response without a real transport.
type Fake struct {
	run            RunFunc
	lookup         SourceLookup
	memoryCeiling  int64
	estimateMemory func(scad string) int64
	target         *bus.Bus
}

// Option configures a Fake executor.
type Option func(*Fake)

// WithMemoryCeiling overrides DefaultMemoryCeiling.
func WithMemoryCeiling(n int64) Option { return func(f *Fake) { f.memoryCeiling = n } }

// WithMemoryEstimator installs a function estimating the memory a render
// would consume, used to simulate OOM without allocating real memory.
func WithMemoryEstimator(f func(scad string) int64) Option {
	return func(e *Fake) { e.estimateMemory = f }
}

// New constructs a Fake executor that runs run against sources resolved
// via lookup.
func New(run RunFunc, lookup SourceLookup, opts ...Option) *Fake {
	f := &Fake{
		run:            run,
		lookup:         lookup,
		memoryCeiling:  DefaultMemoryCeiling,
		estimateMemory: func(string) int64 { return 0 },
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Transport adapts Fake to bus.Transport, so a Bus can dispatch directly
// into this fake executor as if it were a real async transport.
func (f *Fake) Transport() bus.Transport {
	return transportFunc(func(ctx context.Context, req bus.Request) error {
		go f.handle(ctx, req)
		return nil
	})
}

// Bind attaches the Bus this executor delivers responses to. Must be
// called before any request reaches Transport's Send — typically right
// after constructing the Bus with this Transport.
func (f *Fake) Bind(b *bus.Bus) { f.target = b }

type transportFunc func(ctx context.Context, req bus.Request) error

func (t transportFunc) Send(ctx context.Context, req bus.Request) error { return t(ctx, req) }

func (f *Fake) handle(ctx context.Context, req bus.Request) {
	target := f.target
	resp := bus.Response{ID: req.ID}

	scad := req.SCAD
	if scad == "" {
		if src, ok := f.lookup(uint64(req.Fingerprint)); ok {
			scad = src
		}
	}

	if f.estimateMemory(scad) > f.memoryCeiling {
		resp.Status = bus.StatusError
		resp.Err = errkind.New(errkind.Memory, "wasm", "render exceeded memory ceiling", nil)
		target.Deliver(resp)
		return
	}

	raw, err := f.run(ctx, scad)
	if err != nil {
		resp.Status = bus.StatusError
		resp.Err = classify(err)
		target.Deliver(resp)
		return
	}

	normalized, err := stl.Normalize("model", raw)
	if err != nil {
		resp.Status = bus.StatusError
		resp.Err = errkind.New(errkind.Unknown, "wasm", err.Error(), err)
		target.Deliver(resp)
		return
	}

	resp.Status = bus.StatusSuccess
	resp.STL = normalized
	target.Deliver(resp)
}

func classify(err error) *errkind.RenderError {
	if r, ok := err.(*errkind.RenderError); ok {
		return r
	}
	return errkind.New(errkind.Unknown, "wasm", err.Error(), err)
}

// RecognizeSentinel reports whether stlData is a deferred-render sentinel
// rather than actual STL content, and extracts its fingerprint.
func RecognizeSentinel(stlData string) (fingerprintValue uint64, ok bool) {
	fp, ok := sentinel.Parse(stlData)
	return uint64(fp), ok
}
