package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuelshammer/marimo-openscad-render/internal/cache"
	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
)

func TestRenderCachesSuccess(t *testing.T) {
	c := cache.New()
	fp := fingerprint.Compute("cube([1,1,1]);", fingerprint.Local("x"))

	var calls int32
	render := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("solid cube\nendsolid cube\n"), nil
	}

	b1, err1, _ := c.Render(context.Background(), fp, render)
	require.NoError(t, err1)
	b2, err2, _ := c.Render(context.Background(), fp, render)
	require.NoError(t, err2)

	require.Equal(t, b1, b2)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRenderSingleFlightDeduplicatesConcurrentCallers(t *testing.T) {
	c := cache.New()
	fp := fingerprint.Compute("sphere(r=1);", fingerprint.WASM("x"))

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	render := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return []byte("solid sphere\nendsolid sphere\n"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err, _ := c.Render(context.Background(), fp, render)
			require.NoError(t, err)
			results[i] = b
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, b := range results {
		require.Equal(t, results[0], b)
	}
}

func TestRenderDoesNotCacheNonSyntaxErrors(t *testing.T) {
	c := cache.New()
	fp := fingerprint.Compute("cube([1,1,1]);", fingerprint.Local("x"))

	var calls int32
	render := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errkind.New(errkind.GeometryError, "local", "non-manifold", nil)
	}

	_, err1, _ := c.Render(context.Background(), fp, render)
	require.Error(t, err1)
	_, err2, _ := c.Render(context.Background(), fp, render)
	require.Error(t, err2)

	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRenderNegativeCachesSyntaxErrors(t *testing.T) {
	c := cache.New(cache.WithNegativeTTL(50 * time.Millisecond))
	fp := fingerprint.Compute("cube(", fingerprint.Local("x"))

	var calls int32
	render := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errkind.New(errkind.SyntaxError, "local", "unexpected EOF", nil)
	}

	_, err1, _ := c.Render(context.Background(), fp, render)
	require.Error(t, err1)
	_, err2, _ := c.Render(context.Background(), fp, render)
	require.Error(t, err2)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call should hit the negative cache")

	time.Sleep(80 * time.Millisecond)
	_, err3, _ := c.Render(context.Background(), fp, render)
	require.Error(t, err3)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls), "negative cache entry should have expired")
}

func TestEvictionRespectsByteBudget(t *testing.T) {
	c := cache.New(cache.WithMaxBytes(10))

	for i := 0; i < 5; i++ {
		fp := fingerprint.Fingerprint(i)
		_, err, _ := c.Render(context.Background(), fp, func(context.Context) ([]byte, error) {
			return make([]byte, 4), nil
		})
		require.NoError(t, err)
		require.LessOrEqual(t, c.Size(), int64(10))
	}
}

func TestLookupMiss(t *testing.T) {
	c := cache.New()
	_, ok := c.Lookup(fingerprint.Fingerprint(42))
	require.False(t, ok)
}
