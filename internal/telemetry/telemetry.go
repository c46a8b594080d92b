// Package telemetry exposes the Prometheus collectors the coordinator
// updates alongside the host-observable trait vector: render latency,
// cache outcome counts, and in-flight request depth. Modeled on the
// pack's use of prometheus/client_golang for service-level metrics
// rather than a bespoke stats struct.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels a completed render for the duration histogram.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// CacheEvent labels a cache lookup for the lookup counter.
type CacheEvent string

const (
	CacheHit         CacheEvent = "hit"
	CacheMiss        CacheEvent = "miss"
	CacheNegativeHit CacheEvent = "negative_hit"
)

// Metrics bundles the collectors registered against a prometheus.Registerer.
// The zero value is not usable; construct with New.
type Metrics struct {
	RenderDuration  *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	RendersInFlight prometheus.Gauge
}

// New creates and registers the coordinator's collectors against reg. A
// nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openscad_render",
			Name:      "render_duration_seconds",
			Help:      "Time spent producing a render artifact, by backend and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openscad_render",
			Name:      "cache_lookup_total",
			Help:      "Cache lookups by outcome (hit, miss, negative_hit).",
		}, []string{"event"}),
		RendersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openscad_render",
			Name:      "renders_in_flight",
			Help:      "Number of render requests currently awaiting a result.",
		}),
	}
	reg.MustRegister(m.RenderDuration, m.CacheLookups, m.RendersInFlight)
	return m
}

// ObserveRender records the duration of a completed render.
func (m *Metrics) ObserveRender(backend string, outcome Outcome, d time.Duration) {
	m.RenderDuration.WithLabelValues(backend, string(outcome)).Observe(d.Seconds())
}

// ObserveCacheLookup records a single cache lookup outcome.
func (m *Metrics) ObserveCacheLookup(event CacheEvent) {
	m.CacheLookups.WithLabelValues(string(event)).Inc()
}

// RenderStarted increments the in-flight gauge. Callers must pair every
// call with RenderFinished, typically via defer.
func (m *Metrics) RenderStarted() { m.RendersInFlight.Inc() }

// RenderFinished decrements the in-flight gauge.
func (m *Metrics) RenderFinished() { m.RendersInFlight.Dec() }
