// Package wasmbackend implements the host side of a browser-executed
// WASM renderer. It never executes WebAssembly itself: it validates the
// bundled assets, publishes an asset base URL, and returns a transport-safe
// sentinel per render so a synchronous backend interface can straddle the
// host/executor boundary.
package wasmbackend

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
	"github.com/kuelshammer/marimo-openscad-render/internal/fingerprint"
	"github.com/kuelshammer/marimo-openscad-render/internal/sentinel"
)

// wasmMagic is the four-byte WebAssembly binary magic header.
var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// minAssetSize is the plausibility floor for a real openscad.wasm build.
const minAssetSize = 1 << 20

const backendTag = "wasm"

// AssetSet names the files the backend expects under the bundled WASM
// asset directory.
type AssetSet struct {
	Dir          string
	WasmFile     string // defaults to "openscad.wasm"
	JSFile       string // defaults to "openscad.js"
	ManifestFile string // defaults to "manifest.json"
}

func (a AssetSet) wasmPath() string { return filepath.Join(a.Dir, orDefault(a.WasmFile, "openscad.wasm")) }
func (a AssetSet) jsPath() string   { return filepath.Join(a.Dir, orDefault(a.JSFile, "openscad.js")) }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Backend is the host-side half of the WASM renderer. RequestCount
// tracks how many sentinels have been issued.
type Backend struct {
	assets     AssetSet
	baseURL    string
	statFile   func(string) (os.FileInfo, error)
	readHeader func(string, int) ([]byte, error)

	requestCount int64
}

// New constructs a Backend publishing assets from assetDir at baseURL so
// the remote executor can fetch the module. URL resolution for
// non-file hosts is left to the caller: baseURL is opaque to this package.
func New(assets AssetSet, baseURL string) *Backend {
	return &Backend{
		assets:     assets,
		baseURL:    baseURL,
		statFile:   os.Stat,
		readHeader: readFileHeader,
	}
}

// BaseURL returns the published asset base URL.
func (b *Backend) BaseURL() string { return b.baseURL }

// RequestCount returns the number of sentinels issued so far.
func (b *Backend) RequestCount() int64 { return b.requestCount }

// ValidateAssets checks that openscad.wasm and openscad.js exist and that
// openscad.wasm is plausibly sized and begins with the WASM magic header.
// Returns AssetMissing on any failure.
func (b *Backend) ValidateAssets() error {
	wasmPath := b.assets.wasmPath()
	info, err := b.statFile(wasmPath)
	if err != nil {
		return errkind.New(errkind.AssetMissing, backendTag, fmt.Sprintf("%s: %v", wasmPath, err), err)
	}
	if info.Size() < minAssetSize {
		return errkind.New(errkind.AssetMissing, backendTag,
			fmt.Sprintf("%s is too small to be a real openscad.wasm (%d bytes)", wasmPath, info.Size()), nil)
	}
	header, err := b.readHeader(wasmPath, len(wasmMagic))
	if err != nil {
		return errkind.New(errkind.AssetMissing, backendTag, fmt.Sprintf("reading %s: %v", wasmPath, err), err)
	}
	if !bytes.Equal(header, wasmMagic) {
		return errkind.New(errkind.AssetMissing, backendTag, fmt.Sprintf("%s has an invalid WASM magic header", wasmPath), nil)
	}

	jsPath := b.assets.jsPath()
	if _, err := b.statFile(jsPath); err != nil {
		return errkind.New(errkind.AssetMissing, backendTag, fmt.Sprintf("%s: %v", jsPath, err), err)
	}
	return nil
}

// Dispatch returns the sentinel for fp. It does not block on the remote
// executor; the coordinator hands the sentinel to the async message bus
// separately.
func (b *Backend) Dispatch(fp fingerprint.Fingerprint) string {
	b.requestCount++
	return sentinel.Format(fp)
}

func readFileHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
