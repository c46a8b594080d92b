// Package detect locates a native OpenSCAD binary and bundled WASM
// assets, derives a version tuple for each, and ranks installations by
// (kind_priority, version_desc) so a downstream selector can pick one.
//
// Detect() returns every discovered Installation ranked best-first and
// Preferred returns the top-ranked one. Unavailable installations stay in
// the ranking; callers check Installation.Available.
package detect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Kind identifies the category of an Installation.
type Kind int

const (
	Local Kind = iota
	WasmBundled
	WasmSystem
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case WasmBundled:
		return "wasm-bundled"
	case WasmSystem:
		return "wasm-system"
	default:
		return "unknown"
	}
}

// defaultKindPriority ranks Local above WasmBundled above WasmSystem.
// Lower index sorts first.
var defaultKindPriority = []Kind{Local, WasmBundled, WasmSystem}

// Capability enumerates an installation's supported feature set.
type Capability string

const (
	CapManifold Capability = "manifold"
	CapFonts    Capability = "fonts"
	CapMCAD     Capability = "mcad"
	CapBinSTL   Capability = "binstl"
	CapOffline  Capability = "offline"
)

// Version is a {major, minor, patch} tuple.
type Version struct {
	Major, Minor, Patch int
	Raw                 string
}

func (v Version) String() string { return v.Raw }

// semverString renders v as "vMAJOR.MINOR.PATCH" for golang.org/x/mod/semver,
// which requires the leading "v".
func (v Version) semverString() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Installation is an immutable record of one discovered OpenSCAD
// installation.
type Installation struct {
	Kind         Kind
	Version      Version
	Path         string
	Capabilities map[Capability]bool
	Available    bool
}

// HasCapability reports whether the installation supports cap.
func (i Installation) HasCapability(cap Capability) bool {
	return i.Capabilities[cap]
}

// Config controls Detector scanning and the kind_priority ordering.
type Config struct {
	// KindPriority overrides defaultKindPriority when non-nil.
	KindPriority []Kind
	// LocalBinaryName overrides the binary name looked up on PATH and in
	// platform-conventional install directories.
	LocalBinaryName string
	// LocalSearchPaths are additional directories scanned besides PATH.
	LocalSearchPaths []string
	// WasmAssetDirs are candidate directories holding
	// openscad.wasm/openscad.js.
	WasmAssetDirs []string
	// LookPath is overridable for tests; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// RunVersion is overridable for tests; defaults to invoking
	// "<binary> --version" and returning combined stdout+stderr.
	RunVersion func(ctx context.Context, binaryPath string) (string, error)
	// StatWasmAssets validates a candidate WASM asset directory and
	// returns its version, or ok=false if invalid. Asset validation is
	// delegated to the wasmbackend package at call sites but injectable
	// here for the Detector's own scan.
	StatWasmAssets func(dir string) (version string, ok bool)
}

// Detector discovers and ranks Installations. Construct with New;
// Installation records are immutable after Detect runs.
type Detector struct {
	cfg Config
}

// New constructs a Detector. A zero Config uses PATH lookup, "openscad" as
// the binary name, and no WASM asset scanning (callers wire
// WasmAssetDirs/StatWasmAssets explicitly, since asset layout is
// host-specific.
func New(cfg Config) *Detector {
	if cfg.LocalBinaryName == "" {
		cfg.LocalBinaryName = "openscad"
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.RunVersion == nil {
		cfg.RunVersion = runVersion
	}
	if cfg.KindPriority == nil {
		cfg.KindPriority = defaultKindPriority
	}
	return &Detector{cfg: cfg}
}

// Detect scans for all installations and returns them ranked best-first.
func (d *Detector) Detect(ctx context.Context) []Installation {
	var found []Installation

	if inst, ok := d.detectLocal(ctx); ok {
		found = append(found, inst)
	}
	found = append(found, d.detectWasm()...)

	sort.SliceStable(found, func(i, j int) bool {
		return d.less(found[i], found[j])
	})
	return found
}

// Preferred returns the single best-ranked Installation, or ok=false if
// none were found.
func (d *Detector) Preferred(ctx context.Context) (Installation, bool) {
	all := d.Detect(ctx)
	if len(all) == 0 {
		return Installation{}, false
	}
	return all[0], true
}

func (d *Detector) less(a, b Installation) bool {
	pa, pb := d.kindRank(a.Kind), d.kindRank(b.Kind)
	if pa != pb {
		return pa < pb
	}
	return semver.Compare(a.Version.semverString(), b.Version.semverString()) > 0
}

func (d *Detector) kindRank(k Kind) int {
	for i, kk := range d.cfg.KindPriority {
		if kk == k {
			return i
		}
	}
	return len(d.cfg.KindPriority)
}

func (d *Detector) detectLocal(ctx context.Context) (Installation, bool) {
	path, err := d.cfg.LookPath(d.cfg.LocalBinaryName)
	if err != nil {
		for _, dir := range d.cfg.LocalSearchPaths {
			candidate := dir + "/" + d.cfg.LocalBinaryName
			if p, err := d.cfg.LookPath(candidate); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return Installation{}, false
		}
	}

	out, err := d.cfg.RunVersion(ctx, path)
	if err != nil {
		return Installation{Kind: Local, Path: path, Available: false}, true
	}

	v := ParseVersion(out)
	return Installation{
		Kind:    Local,
		Version: v,
		Path:    path,
		Capabilities: map[Capability]bool{
			CapManifold: semver.Compare(v.semverString(), "v2021.1.0") >= 0,
			CapFonts:    true,
			CapMCAD:     false,
			CapBinSTL:   true,
			CapOffline:  true,
		},
		Available: true,
	}, true
}

func (d *Detector) detectWasm() []Installation {
	if d.cfg.StatWasmAssets == nil {
		return nil
	}
	var out []Installation
	for _, dir := range d.cfg.WasmAssetDirs {
		version, ok := d.cfg.StatWasmAssets(dir)
		if !ok {
			continue
		}
		out = append(out, Installation{
			Kind:    WasmBundled,
			Version: ParseVersion(version),
			Path:    dir,
			Capabilities: map[Capability]bool{
				CapManifold: true,
				CapFonts:    true,
				CapMCAD:     true,
				CapBinSTL:   false,
				CapOffline:  false,
			},
			Available: true,
		})
	}
	return out
}

func runVersion(ctx context.Context, binaryPath string) (string, error) {
	cmd := exec.CommandContext(ctx, binaryPath, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("detect: %s --version: %w", binaryPath, err)
	}
	return string(out), nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts a {major, minor, patch} tuple from free-form
// version text such as "OpenSCAD version 2023.12" or "2023.12.1".
func ParseVersion(text string) Version {
	m := versionPattern.FindStringSubmatch(text)
	if m == nil {
		return Version{Raw: strings.TrimSpace(text)}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return Version{Major: major, Minor: minor, Patch: patch, Raw: strings.TrimSpace(text)}
}
