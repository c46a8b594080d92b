package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuelshammer/marimo-openscad-render/internal/bus"
	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/executor"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
	"github.com/kuelshammer/marimo-openscad-render/internal/stl"
)

func cubeBinarySTL() []byte {
	return stl.EncodeBinary([]stl.Triangle{
		{Normal: [3]float32{0, 0, 1}, Vertices: [3][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}},
	})
}

func newWiredBus(run executor.RunFunc, opts ...executor.Option) *bus.Bus {
	fake := executor.New(run, func(uint64) (string, bool) { return "", false }, opts...)
	b := bus.New(fake.Transport())
	fake.Bind(b)
	return b
}

func TestFakeExecutorNormalizesBinaryToASCII(t *testing.T) {
	b := newWiredBus(func(ctx context.Context, scad string) ([]byte, error) {
		return cubeBinarySTL(), nil
	})

	fp := fingerprint.Compute("cube(1);", fingerprint.WASM("2024.05"))
	id, cancel, err := b.Dispatch(context.Background(), bus.KindRender, "cube(1);", fp, time.Second)
	require.NoError(t, err)
	defer cancel()

	resp, err := b.Await(context.Background(), id, time.Second)
	require.NoError(t, err)
	require.Equal(t, bus.StatusSuccess, resp.Status)
	require.True(t, stl.IsASCII(resp.STL))
	require.Equal(t, 1, stl.FacetCount(resp.STL))
}

func TestFakeExecutorSurfacesRunError(t *testing.T) {
	b := newWiredBus(func(ctx context.Context, scad string) ([]byte, error) {
		return nil, errkind.New(errkind.SyntaxError, "wasm", "unexpected token", nil)
	})

	fp := fingerprint.Compute("bad(", fingerprint.WASM("2024.05"))
	id, cancel, err := b.Dispatch(context.Background(), bus.KindRender, "bad(", fp, time.Second)
	require.NoError(t, err)
	defer cancel()

	resp, err := b.Await(context.Background(), id, time.Second)
	require.NoError(t, err)
	require.Equal(t, bus.StatusError, resp.Status)
	require.True(t, errors.Is(resp.Err, errkind.Sentinel(errkind.SyntaxError)))
}

func TestFakeExecutorEnforcesMemoryCeiling(t *testing.T) {
	fake := executor.New(
		func(ctx context.Context, scad string) ([]byte, error) { return cubeBinarySTL(), nil },
		func(uint64) (string, bool) { return "", false },
		executor.WithMemoryCeiling(1024),
		executor.WithMemoryEstimator(func(scad string) int64 { return 2048 }),
	)
	b := bus.New(fake.Transport())
	fake.Bind(b)

	fp := fingerprint.Compute("huge();", fingerprint.WASM("2024.05"))
	id, cancel, err := b.Dispatch(context.Background(), bus.KindRender, "huge();", fp, time.Second)
	require.NoError(t, err)
	defer cancel()

	resp, err := b.Await(context.Background(), id, time.Second)
	require.NoError(t, err)
	require.Equal(t, bus.StatusError, resp.Status)
	require.True(t, errors.Is(resp.Err, errkind.Sentinel(errkind.Memory)))
}

func TestRecognizeSentinelRoundTrips(t *testing.T) {
	fp := fingerprint.Compute("sphere(1);", fingerprint.WASM("2024.05"))
	s := "WASM_RENDER_REQUEST:" + fp.String()

	got, ok := executor.RecognizeSentinel(s)
	require.True(t, ok)
	require.Equal(t, uint64(fp), got)

	_, ok = executor.RecognizeSentinel("solid model\nendsolid model\n")
	require.False(t, ok)
}
