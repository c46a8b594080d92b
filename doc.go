// Package render is the Render Coordination Engine: it accepts SCAD
// source revisions from a reactive notebook host, routes each revision
// through a native or browser-WASM OpenSCAD backend, deduplicates and
// caches results, and publishes STL bytes plus status telemetry back to
// the host.
//
// Its exported surface is deliberately small: Config for tuning, Deps for
// wiring collaborators, and Coordinator for driving the pipeline.
// Everything else — fingerprinting, caching, detection, backends, the
// message bus, the sentinel format — lives under internal/ and is
// assembled here.
package render
