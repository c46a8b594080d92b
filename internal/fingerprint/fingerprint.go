// Package fingerprint content-addresses canonicalized SCAD source plus a
// backend discriminator into a stable 64-bit digest, the cache key used
// throughout the render pipeline.
package fingerprint

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a stable digest of canonicalized SCAD source and a backend
// discriminator. Equal fingerprints imply equivalent render outputs for a
// given backend version.
type Fingerprint uint64

// String renders the fingerprint as ASCII decimal, the form embedded in the
// WASM_RENDER_REQUEST sentinel.
func (fp Fingerprint) String() string {
	return strconv.FormatUint(uint64(fp), 10)
}

// Parse inverts String. Round-trips for every Fingerprint.
func Parse(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Fingerprint(v), nil
}

// Discriminator identifies the backend and version a render is bound to,
// e.g. "local:2023.12" or "wasm:2024.05". Fingerprints of the same SCAD
// source differ across discriminators.
type Discriminator string

// Local builds the "local:<version>" discriminator.
func Local(version string) Discriminator { return Discriminator("local:" + version) }

// WASM builds the "wasm:<version>" discriminator.
func WASM(version string) Discriminator { return Discriminator("wasm:" + version) }

// Compute canonicalizes scad (whitespace-insensitive) and hashes it together
// with disc. Stable across runs and platforms for a fixed canon+disc pair.
func Compute(scad string, disc Discriminator) Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(Canonicalize(scad))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(string(disc))
	return Fingerprint(h.Sum64())
}

// Canonicalize normalizes line endings, drops leading and trailing
// whitespace and any whitespace next to punctuation, and collapses each
// remaining whitespace run (one between two identifier or number
// characters) to a single space, so that two SCAD sources differing only
// in formatting fingerprint identically.
func Canonicalize(scad string) string {
	scad = strings.ReplaceAll(scad, "\r\n", "\n")
	scad = strings.ReplaceAll(scad, "\r", "\n")

	isWord := func(r rune) bool {
		return r == '_' || r == '$' || r == '.' || (r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x80
	}

	var b strings.Builder
	b.Grow(len(scad))
	var prev rune
	inSpace := false
	for _, r := range scad {
		if r == ' ' || r == '\t' || r == '\n' {
			inSpace = true
			continue
		}
		if inSpace && isWord(prev) && isWord(r) {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
