package render

import (
	"time"

	"github.com/kuelshammer/marimo-openscad-render/internal/cache"
	"github.com/kuelshammer/marimo-openscad-render/internal/localbackend"
	"github.com/kuelshammer/marimo-openscad-render/internal/selector"
)

// Config controls Coordinator behavior, with the default implementation
// as NewConfig. The zero value is not usable; always start from NewConfig.
//
// Following the clone-on-every-mutation builder shape: every With* method
// returns a new, independent Config so a base configuration can be
// shared and specialized without aliasing bugs.
type Config struct {
	cacheMaxBytes    int64
	cacheNegativeTTL time.Duration
	localPoolSize    int
	localDeadline    time.Duration
	wasmDeadline     time.Duration
	preferred        selector.Preference
	fallbackEnabled  bool
	browserLike      bool
}

// NewConfig returns a Config with every knob at its documented default.
func NewConfig() *Config {
	return &Config{
		cacheMaxBytes:    cache.DefaultMaxBytes,
		cacheNegativeTTL: cache.DefaultNegativeTTL,
		localPoolSize:    localbackend.DefaultWorkerPoolSize,
		localDeadline:    localbackend.DefaultDeadline,
		wasmDeadline:     10 * time.Second,
		preferred:        selector.PreferAuto,
		fallbackEnabled:  true,
	}
}

// clone ensures all fields are copied even as the struct grows.
func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// WithCacheMaxBytes overrides the total STL artifact cache budget.
func (c *Config) WithCacheMaxBytes(n int64) *Config {
	ret := c.clone()
	ret.cacheMaxBytes = n
	return ret
}

// WithCacheNegativeTTL overrides how long a SyntaxError result is
// remembered so repeated submission of unchanged bad source does not
// re-invoke the backend.
func (c *Config) WithCacheNegativeTTL(d time.Duration) *Config {
	ret := c.clone()
	ret.cacheNegativeTTL = d
	return ret
}

// WithLocalWorkerPoolSize overrides the number of concurrent native
// OpenSCAD subprocess invocations.
func (c *Config) WithLocalWorkerPoolSize(n int) *Config {
	ret := c.clone()
	ret.localPoolSize = n
	return ret
}

// WithLocalDeadline overrides the per-render timeout for the local backend.
func (c *Config) WithLocalDeadline(d time.Duration) *Config {
	ret := c.clone()
	ret.localDeadline = d
	return ret
}

// WithWasmDeadline overrides the per-render timeout for the WASM backend.
func (c *Config) WithWasmDeadline(d time.Duration) *Config {
	ret := c.clone()
	ret.wasmDeadline = d
	return ret
}

// WithPreferredBackend overrides the renderer_type host trait.
func (c *Config) WithPreferredBackend(p selector.Preference) *Config {
	ret := c.clone()
	ret.preferred = p
	return ret
}

// WithFallback toggles whether the selector may fall back to the other
// backend when the preferred one is unavailable or invalid.
func (c *Config) WithFallback(enabled bool) *Config {
	ret := c.clone()
	ret.fallbackEnabled = enabled
	return ret
}

// WithHostBrowserLike tells the selector's auto mode whether the embedding
// host is browser-like, which tie-breaks toward the WASM backend when
// both backends are available.
func (c *Config) WithHostBrowserLike(browserLike bool) *Config {
	ret := c.clone()
	ret.browserLike = browserLike
	return ret
}
