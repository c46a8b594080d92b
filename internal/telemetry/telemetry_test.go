package telemetry_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/kuelshammer/marimo-openscad-render/internal/telemetry"
)

func TestObserveRenderRecordsHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)

	m.ObserveRender("local", telemetry.OutcomeSuccess, 25*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, hasMetricFamily(families, "openscad_render_render_duration_seconds"))
}

func TestObserveCacheLookupIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)

	m.ObserveCacheLookup(telemetry.CacheHit)
	m.ObserveCacheLookup(telemetry.CacheMiss)
	m.ObserveCacheLookup(telemetry.CacheHit)

	require.Equal(t, float64(2), counterValue(t, m.CacheLookups.WithLabelValues(string(telemetry.CacheHit))))
	require.Equal(t, float64(1), counterValue(t, m.CacheLookups.WithLabelValues(string(telemetry.CacheMiss))))
}

func TestRenderStartedFinishedTracksGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)

	m.RenderStarted()
	m.RenderStarted()
	require.Equal(t, float64(2), gaugeValue(t, m.RendersInFlight))

	m.RenderFinished()
	require.Equal(t, float64(1), gaugeValue(t, m.RendersInFlight))
}

func hasMetricFamily(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
