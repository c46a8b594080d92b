package sentinel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
	"github.com/kuelshammer/marimo-openscad-render/internal/sentinel"
)

func TestFormatParseRoundTrip(t *testing.T) {
	fp := fingerprint.Compute("sphere(r=1);", fingerprint.WASM("2024.05"))
	s := sentinel.Format(fp)

	require.True(t, sentinel.IsSentinel(s))
	require.False(t, sentinel.IsSentinel("solid model\nendsolid model\n"))

	parsed, ok := sentinel.Parse(s)
	require.True(t, ok)
	require.Equal(t, fp, parsed)
}

func TestPrefixDistinctFromASCIISTL(t *testing.T) {
	require.False(t, sentinel.IsSentinel("solid " + sentinel.Prefix))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := sentinel.Parse("WASM_RENDER_REQUEST:not-a-number")
	require.False(t, ok)

	_, ok = sentinel.Parse("not a sentinel at all")
	require.False(t, ok)
}

func TestFormatHasNoWhitespace(t *testing.T) {
	fp := fingerprint.Compute("cube(1);", fingerprint.Local("x"))
	s := sentinel.Format(fp)
	for _, r := range s {
		require.NotEqual(t, ' ', r)
		require.NotEqual(t, '\n', r)
		require.NotEqual(t, '\t', r)
	}
}
