// Package selector picks an active render backend per request from
// preference and availability, and degrades gracefully on failure when
// fallback is enabled.
package selector

import (
	"errors"

	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
)

// Preference is the host-controlled renderer_type trait.
type Preference string

const (
	PreferAuto  Preference = "auto"
	PreferLocal Preference = "local"
	PreferWasm  Preference = "wasm"
)

// Backend identifies which concrete backend a Decision selects.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendWasm  Backend = "wasm"
)

// Host describes the environment the selector is running in, used to
// break ties under PreferAuto: WASM in browser-like hosts, local
// otherwise.
type Host struct {
	BrowserLike bool
}

// Decision is the selector's per-request output. The coordinator
// dispatches on Backend and logs it; the decision is not published in the
// coordinator's State.
type Decision struct {
	Backend  Backend
	Fallback bool // true if this decision is the result of a fallback
	Reason   string
}

// Selector holds the host-configurable preference/fallback state.
type Selector struct {
	Preferred       Preference
	FallbackEnabled bool
}

// New constructs a Selector with the given preference and fallback
// toggle.
func New(preferred Preference, fallbackEnabled bool) *Selector {
	return &Selector{Preferred: preferred, FallbackEnabled: fallbackEnabled}
}

// Select picks a backend given the detector's current view of
// availability and the embedding Host.
func (s *Selector) Select(localAvailable bool, wasmAssetsValid bool, host Host) (Decision, error) {
	switch s.Preferred {
	case PreferLocal:
		if localAvailable {
			return Decision{Backend: BackendLocal, Reason: "preferred=local, available"}, nil
		}
		if s.FallbackEnabled && wasmAssetsValid {
			return Decision{Backend: BackendWasm, Fallback: true, Reason: "preferred=local unavailable, falling back to wasm"}, nil
		}
		return Decision{}, errkind.New(errkind.ToolMissing, "", "preferred local backend unavailable and fallback disabled", nil)

	case PreferWasm:
		if wasmAssetsValid {
			return Decision{Backend: BackendWasm, Reason: "preferred=wasm, assets valid"}, nil
		}
		if s.FallbackEnabled && localAvailable {
			return Decision{Backend: BackendLocal, Fallback: true, Reason: "preferred=wasm assets invalid, falling back to local"}, nil
		}
		return Decision{}, errkind.New(errkind.AssetMissing, "", "preferred wasm backend invalid and fallback disabled", nil)

	case PreferAuto, "":
		return s.selectAuto(localAvailable, wasmAssetsValid, host)

	default:
		return Decision{}, errors.New("selector: unknown preference " + string(s.Preferred))
	}
}

// selectAuto chooses by availability alone: the only available backend,
// or, when both are available, WASM in browser-like hosts and local
// otherwise. The detector's kind_priority ranking is not consulted.
func (s *Selector) selectAuto(localAvailable, wasmAssetsValid bool, host Host) (Decision, error) {
	switch {
	case localAvailable && wasmAssetsValid:
		if host.BrowserLike {
			return Decision{Backend: BackendWasm, Reason: "auto: both available, browser-like host prefers wasm"}, nil
		}
		return Decision{Backend: BackendLocal, Reason: "auto: both available, non-browser host prefers local"}, nil
	case localAvailable:
		return Decision{Backend: BackendLocal, Reason: "auto: only local available"}, nil
	case wasmAssetsValid:
		return Decision{Backend: BackendWasm, Reason: "auto: only wasm available"}, nil
	default:
		return Decision{}, errkind.New(errkind.Unknown, "", "no renderer backend available", nil)
	}
}
