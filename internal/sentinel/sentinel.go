// Package sentinel formats and parses the WASM_RENDER_REQUEST placeholder
// that lets the host-side WASM backend straddle the asynchronous
// host/executor boundary behind a synchronous return value.
package sentinel

import (
	"strings"

	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
)

// Prefix is the exact, whitespace-free literal every sentinel begins with.
// It must be unambiguous against legitimate ASCII STL, which always begins
// with "solid ".
const Prefix = "WASM_RENDER_REQUEST:"

// Format renders the sentinel for fp: deterministic in the fingerprint,
// valid UTF-8, no whitespace.
func Format(fp fingerprint.Fingerprint) string {
	return Prefix + fp.String()
}

// IsSentinel reports whether s carries the sentinel prefix.
func IsSentinel(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Parse extracts the fingerprint from a sentinel string. Round-trips with
// Format for every fingerprint.
func Parse(s string) (fingerprint.Fingerprint, bool) {
	if !IsSentinel(s) {
		return 0, false
	}
	return parseOrZero(strings.TrimPrefix(s, Prefix))
}

func parseOrZero(rest string) (fingerprint.Fingerprint, bool) {
	fp, err := fingerprint.Parse(rest)
	if err != nil {
		return 0, false
	}
	return fp, true
}
