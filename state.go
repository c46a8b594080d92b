package render

import (
	"github.com/kuelshammer/marimo-openscad-render/internal/detect"
)

// StatusTag is the renderer_status host trait.
type StatusTag string

const (
	StatusInitializing StatusTag = "initializing"
	StatusReady        StatusTag = "ready"
	StatusRendering    StatusTag = "rendering"
	StatusSuccess      StatusTag = "success"
	StatusError        StatusTag = "error"
)

// State is the Widget State Vector: the set of traits observed by the
// host. Exactly one of IsLoading or a terminal RendererStatus
// (success/error) holds at any instant per active request.
type State struct {
	ScadCode             string
	StlData              string
	RendererStatus       StatusTag
	ErrorMessage         string
	IsLoading            bool
	RendererType         string
	WasmEnabled          bool
	WasmBaseURL          string
	RendererCapabilities map[detect.Capability]bool
}
