// Package cache implements an LRU-evicted, byte-budgeted store of STL
// artifacts keyed by Fingerprint, with an at-most-one-in-flight-per-
// fingerprint guard and a short-TTL negative cache for syntax errors only
// (the negative-cache policy is decided in DESIGN.md).
//
// The in-flight guard generalizes a compilation-cache shape — keyed
// artifact bytes behind a single-flight gate — from "compiled module
// bytes, process-lifetime" to "render artifact bytes, LRU-evicted", and
// is backed by resenje.org/singleflight instead of a hand-rolled
// waitgroup, since that library's entire purpose is letting concurrent
// callers share one in-flight computation.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"resenje.org/singleflight"

	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
)

// DefaultMaxBytes is the default total cache size budget.
const DefaultMaxBytes = 256 << 20 // 256 MiB

// DefaultNegativeTTL is how long a SyntaxError result is remembered so
// that re-submitting unchanged bad source within a debounce window does
// not re-invoke the backend.
const DefaultNegativeTTL = 5 * time.Second

// Result is what begin/commit exchange: the STL artifact bytes, or a
// terminal error. Cache never stores an error entry except in the
// negative cache described above.
type Result struct {
	Bytes []byte
	Err   error
}

type entry struct {
	fp        fingerprint.Fingerprint
	bytes     []byte
	size      int
	createdAt time.Time
	elem      *list.Element
}

type negativeEntry struct {
	err     error
	expires time.Time
}

// Cache is the C1 Fingerprint & Cache component. Zero value is not usable;
// construct with New.
type Cache struct {
	maxBytes    int64
	negativeTTL time.Duration

	mu       sync.Mutex
	entries  map[fingerprint.Fingerprint]*entry
	order    *list.List // front = most recently used
	curBytes int64
	negative map[fingerprint.Fingerprint]negativeEntry

	flight singleflight.Group[string, Result]
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option { return func(c *Cache) { c.maxBytes = n } }

// WithNegativeTTL overrides DefaultNegativeTTL.
func WithNegativeTTL(d time.Duration) Option { return func(c *Cache) { c.negativeTTL = d } }

// New constructs an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxBytes:    DefaultMaxBytes,
		negativeTTL: DefaultNegativeTTL,
		entries:     make(map[fingerprint.Fingerprint]*entry),
		order:       list.New(),
		negative:    make(map[fingerprint.Fingerprint]negativeEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns the cached artifact for fp, if present. O(1) average.
func (c *Cache) Lookup(fp fingerprint.Fingerprint) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fp]; ok {
		c.order.MoveToFront(e.elem)
		return e.bytes, true
	}
	return nil, false
}

// LookupNegative returns the remembered SyntaxError for fp, if one is
// still within its TTL.
func (c *Cache) LookupNegative(fp fingerprint.Fingerprint) (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ne, ok := c.negative[fp]
	if !ok {
		return nil, false
	}
	if time.Now().After(ne.expires) {
		delete(c.negative, fp)
		return nil, false
	}
	return ne.err, true
}

// Render invokes render exactly once per fingerprint across any number of
// concurrent callers with the same fp: the first caller runs render and
// every other concurrent caller receives that result without invoking
// render again. A successful result is committed to the cache; a
// SyntaxError result is committed to the negative cache; any other error
// is not cached at all.
func (c *Cache) Render(ctx context.Context, fp fingerprint.Fingerprint, render func(context.Context) ([]byte, error)) ([]byte, error, bool) {
	if b, ok := c.Lookup(fp); ok {
		return b, nil, false
	}
	if err, ok := c.LookupNegative(fp); ok {
		return nil, err, false
	}

	v, shared, err := c.flight.Do(ctx, fp.String(), func(ctx context.Context) (Result, error) {
		b, err := render(ctx)
		if err != nil {
			c.recordFailure(fp, err)
			return Result{}, err
		}
		c.commit(fp, b)
		return Result{Bytes: b}, nil
	})
	if err != nil {
		return nil, err, shared
	}
	return v.Bytes, nil, shared
}

func (c *Cache) recordFailure(fp fingerprint.Fingerprint, err error) {
	var re *errkind.RenderError
	if !errors.As(err, &re) || re.Kind != errkind.SyntaxError {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[fp] = negativeEntry{err: err, expires: time.Now().Add(c.negativeTTL)}
}

// commit inserts bytes for fp, evicting least-recently-used entries until
// the cache is back under budget.
func (c *Cache) commit(fp fingerprint.Fingerprint, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fp]; ok {
		c.order.Remove(old.elem)
		c.curBytes -= int64(old.size)
		delete(c.entries, fp)
	}

	e := &entry{fp: fp, bytes: b, size: len(b), createdAt: time.Now()}
	e.elem = c.order.PushFront(e)
	c.entries[fp] = e
	c.curBytes += int64(e.size)

	for c.curBytes > c.maxBytes && c.order.Len() > 0 {
		back := c.order.Back()
		victim := back.Value.(*entry)
		c.order.Remove(back)
		delete(c.entries, victim.fp)
		c.curBytes -= int64(victim.size)
	}
}

// Size returns the current total bytes held, for tests asserting the
// cache never exceeds its configured byte budget.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
