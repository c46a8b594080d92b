package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kuelshammer/marimo-openscad-render/internal/bus"
	"github.com/kuelshammer/marimo-openscad-render/internal/cache"
	"github.com/kuelshammer/marimo-openscad-render/internal/detect"
	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
	"github.com/kuelshammer/marimo-openscad-render/internal/localbackend"
	"github.com/kuelshammer/marimo-openscad-render/internal/params"
	"github.com/kuelshammer/marimo-openscad-render/internal/selector"
	"github.com/kuelshammer/marimo-openscad-render/internal/sentinel"
	"github.com/kuelshammer/marimo-openscad-render/internal/stl"
	"github.com/kuelshammer/marimo-openscad-render/internal/telemetry"
	"github.com/kuelshammer/marimo-openscad-render/internal/wasmbackend"
)

// Coordinator is the Render Coordinator (C7): it observes SCAD revisions,
// drives cache lookup, backend selection, and dispatch, and publishes the
// resulting State to the host. The zero value is not usable; construct
// with NewCoordinator.
//
// Coordinator runs the single-threaded cooperative scheduler model the
// embedding host expects: Submit returns immediately and the pipeline
// runs on its own goroutine per generation, but every State mutation is
// serialized under mu so a concurrent State() read never observes a
// torn update.
type Coordinator struct {
	cfg      *Config
	cache    *cache.Cache
	detector *detect.Detector
	local    *localbackend.Backend
	wasm     *wasmbackend.Backend
	selector *selector.Selector
	bus      *bus.Bus
	metrics  *telemetry.Metrics
	log      *logrus.Entry

	mu          sync.Mutex
	state       State
	generation  uint64
	cancelAwait func()
}

// Deps bundles the collaborators a Coordinator needs. Local or Wasm (or
// both) may be nil if that backend is not configured for this process;
// the selector then only ever reports the configured backend available.
type Deps struct {
	Detector  *detect.Detector
	Local     *localbackend.Backend
	Wasm      *wasmbackend.Backend
	Transport bus.Transport
	// Bus, when non-nil, is used as the coordinator's message bus in place
	// of one built over Transport, so the caller holds the Bus a remote
	// executor delivers its responses into.
	Bus     *bus.Bus
	Metrics *telemetry.Metrics
	Logger  *logrus.Logger
}

// NewCoordinator constructs a Coordinator from cfg and deps.
func NewCoordinator(cfg *Config, deps Deps) *Coordinator {
	if cfg == nil {
		cfg = NewConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Coordinator{
		cfg:      cfg,
		cache:    cache.New(cache.WithMaxBytes(cfg.cacheMaxBytes), cache.WithNegativeTTL(cfg.cacheNegativeTTL)),
		detector: deps.Detector,
		local:    deps.Local,
		wasm:     deps.Wasm,
		selector: selector.New(cfg.preferred, cfg.fallbackEnabled),
		metrics:  deps.Metrics,
		log:      logger.WithField("component", "coordinator"),
		state: State{
			RendererStatus: StatusInitializing,
			RendererType:   string(cfg.preferred),
			WasmEnabled:    deps.Wasm != nil,
		},
	}
	if deps.Wasm != nil {
		c.state.WasmBaseURL = deps.Wasm.BaseURL()
	}
	if deps.Detector != nil {
		if inst, ok := deps.Detector.Preferred(context.Background()); ok {
			c.state.RendererCapabilities = inst.Capabilities
		}
	}
	switch {
	case deps.Bus != nil:
		c.bus = deps.Bus
	case deps.Transport != nil:
		c.bus = bus.New(deps.Transport, bus.WithUnknownIDHandler(func(id uuid.UUID) {
			c.log.WithField("request_id", id).Warn("dropped response for unknown request id")
		}))
	}
	c.state.RendererStatus = StatusReady
	return c
}

// State returns a snapshot of the currently published Widget State
// Vector.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit accepts a new SCAD revision from the host. If a previous
// request is still Awaiting a WASM response, it is cancelled
// (supersession): IsLoading remains true across the transition and only
// the response for this, the latest, revision is ever published.
func (c *Coordinator) Submit(ctx context.Context, scad string) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.cancelAwait != nil {
		c.cancelAwait()
		c.cancelAwait = nil
	}
	c.state.ScadCode = scad
	c.state.IsLoading = true
	c.state.RendererStatus = StatusRendering
	c.state.ErrorMessage = ""
	c.mu.Unlock()

	go c.run(ctx, gen, scad)
}

// Parameters answers a kind="parameters" request without touching the
// render or cache path.
func (c *Coordinator) Parameters(scad string) []params.ParameterSpec {
	return params.ExtractParameters(scad)
}

func (c *Coordinator) run(ctx context.Context, gen uint64, scad string) {
	log := c.log.WithField("generation", gen)

	canon := fingerprint.Canonicalize(scad)
	if strings.TrimSpace(canon) == "" {
		c.publishError(gen, errkind.New(errkind.SyntaxError, "", "empty SCAD source", nil))
		return
	}

	localAvailable := c.local != nil
	wasmValid := false
	if c.wasm != nil {
		wasmValid = c.wasm.ValidateAssets() == nil
	}
	localVersion, wasmVersion := "unknown", "unknown"
	if c.detector != nil {
		for _, inst := range c.detector.Detect(ctx) {
			switch inst.Kind {
			case detect.Local:
				localAvailable = localAvailable && inst.Available
				localVersion = inst.Version.String()
			case detect.WasmBundled, detect.WasmSystem:
				wasmVersion = inst.Version.String()
			}
		}
	}

	decision, err := c.selector.Select(localAvailable, wasmValid, selector.Host{BrowserLike: c.cfg.browserLike})
	if err != nil {
		c.publishError(gen, err)
		return
	}
	log.WithField("backend", decision.Backend).Debug("selected backend")

	disc := fingerprint.Local(localVersion)
	deadline := c.cfg.localDeadline
	if decision.Backend == selector.BackendWasm {
		disc = fingerprint.WASM(wasmVersion)
		deadline = c.cfg.wasmDeadline
	}
	fp := fingerprint.Compute(scad, disc)
	log = log.WithField("fingerprint", fp.String())

	if c.metrics != nil {
		if _, ok := c.cache.Lookup(fp); ok {
			c.metrics.ObserveCacheLookup(telemetry.CacheHit)
		} else if _, ok := c.cache.LookupNegative(fp); ok {
			c.metrics.ObserveCacheLookup(telemetry.CacheNegativeHit)
		} else {
			c.metrics.ObserveCacheLookup(telemetry.CacheMiss)
		}
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.RenderStarted()
		defer c.metrics.RenderFinished()
	}

	b, err, shared := c.cache.Render(ctx, fp, func(ctx context.Context) ([]byte, error) {
		switch decision.Backend {
		case selector.BackendLocal:
			raw, err := c.local.Render(ctx, scad, deadline)
			if err != nil {
				return nil, err
			}
			return stl.Normalize("model", raw)
		case selector.BackendWasm:
			return c.renderWasm(ctx, gen, fp, scad, deadline)
		default:
			return nil, errkind.New(errkind.Unknown, "", "no backend selected", nil)
		}
	})
	if err != nil && decision.Backend == selector.BackendLocal && c.cfg.fallbackEnabled && wasmValid &&
		errors.Is(err, errkind.Sentinel(errkind.ToolMissing)) {
		log.Warn("local backend tool missing, falling back to wasm")
		decision = selector.Decision{Backend: selector.BackendWasm, Fallback: true, Reason: "local tool missing, falling back to wasm"}
		fp = fingerprint.Compute(scad, fingerprint.WASM(wasmVersion))
		b, err, shared = c.cache.Render(ctx, fp, func(ctx context.Context) ([]byte, error) {
			return c.renderWasm(ctx, gen, fp, scad, c.cfg.wasmDeadline)
		})
	}
	log.WithField("cache_shared", shared).Debug("render completed")

	c.mu.Lock()
	superseded := gen != c.generation
	c.mu.Unlock()
	if superseded {
		return
	}

	if err != nil {
		if errors.Is(err, errkind.Sentinel(errkind.Cancelled)) {
			return
		}
		if c.metrics != nil {
			c.metrics.ObserveRender(string(decision.Backend), telemetry.OutcomeError, time.Since(start))
		}
		c.publishError(gen, err)
		return
	}

	if c.metrics != nil {
		c.metrics.ObserveRender(string(decision.Backend), telemetry.OutcomeSuccess, time.Since(start))
	}
	c.publishSuccess(gen, b)
}

// renderWasm dispatches fp to the WASM backend, publishes the sentinel as
// the interim StlData so the host observes the pending request, and
// awaits the correlated response from the Bus.
func (c *Coordinator) renderWasm(ctx context.Context, gen uint64, fp fingerprint.Fingerprint, scad string, deadline time.Duration) ([]byte, error) {
	if c.bus == nil {
		return nil, errkind.New(errkind.Unknown, "wasm", "no transport configured for the async message bus", nil)
	}

	sentinelStr := c.wasm.Dispatch(fp)

	id, cancel, err := c.bus.Dispatch(ctx, bus.KindRender, scad, fp, deadline)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		cancel()
		return nil, errkind.New(errkind.Cancelled, "wasm", "superseded before dispatch completed", nil)
	}
	c.cancelAwait = cancel
	c.state.StlData = sentinelStr
	c.mu.Unlock()

	resp, err := c.bus.Await(ctx, id, deadline)
	if err != nil {
		return nil, err
	}
	if resp.Status == bus.StatusError {
		if resp.Err != nil {
			return nil, resp.Err
		}
		return nil, errkind.New(errkind.Unknown, "wasm", "remote executor reported an error with no detail", nil)
	}
	return resp.STL, nil
}

func (c *Coordinator) publishSuccess(gen uint64, stlData []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.state.StlData = string(stlData)
	c.state.RendererStatus = StatusSuccess
	c.state.ErrorMessage = ""
	c.state.IsLoading = false
	c.cancelAwait = nil
}

func (c *Coordinator) publishError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.state.RendererStatus = StatusError
	c.state.ErrorMessage = errorMessage(err)
	c.state.IsLoading = false
	c.cancelAwait = nil
}

func errorMessage(err error) string {
	var re *errkind.RenderError
	if errors.As(err, &re) {
		return re.Error()
	}
	return err.Error()
}

// IsPending reports whether state.StlData currently holds a dispatched
// sentinel rather than completed STL bytes — the host can use this to
// distinguish the two without parsing StlData itself.
func IsPending(state State) bool {
	return sentinel.IsSentinel(state.StlData)
}
