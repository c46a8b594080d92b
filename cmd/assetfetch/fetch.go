// Package main implements the ancillary build step that downloads the
// bundled WASM OpenSCAD assets into the static directory internal/detect
// and internal/wasmbackend expect. It is not part of the Render
// Coordination Engine's core: the engine only ever reads the assets this
// tool places on disk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// defaultAssets are the files required for a working WASM backend. fonts
// and MCAD are optional extras the manifest still records when present.
var defaultAssets = []string{"openscad.wasm", "openscad.js"}

var optionalAssets = []string{"fonts.zip", "MCAD.zip"}

// manifestEntry records one fetched asset's size, for the detector and
// for operators diagnosing a stale bundle.
type manifestEntry struct {
	Name       string `json:"name"`
	Bytes      int64  `json:"bytes"`
	SourceURL  string `json:"source_url"`
	FetchedUTC string `json:"fetched_utc"`
}

type manifest struct {
	Assets []manifestEntry `json:"assets"`
}

// fetchConfig controls one run of fetchAssets.
type fetchConfig struct {
	SourceURL string
	DestDir   string
	Client    *http.Client
	Now       func() time.Time
}

// fetchAssets downloads defaultAssets (required) and optionalAssets (best
// effort) from cfg.SourceURL into cfg.DestDir, then writes manifest.json.
// Any required asset failing to download or copy to disk is a
// prerequisite failure and returns a non-nil error.
func fetchAssets(ctx context.Context, cfg fetchConfig) error {
	if cfg.SourceURL == "" {
		return fmt.Errorf("assetfetch: source URL is required")
	}
	if cfg.DestDir == "" {
		return fmt.Errorf("assetfetch: destination directory is required")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(cfg.DestDir, 0o755); err != nil {
		return fmt.Errorf("assetfetch: creating %s: %w", cfg.DestDir, err)
	}

	var m manifest
	for _, name := range defaultAssets {
		entry, err := fetchOne(ctx, client, cfg.SourceURL, cfg.DestDir, name, now)
		if err != nil {
			return fmt.Errorf("assetfetch: required asset %s: %w", name, err)
		}
		m.Assets = append(m.Assets, entry)
	}
	for _, name := range optionalAssets {
		entry, err := fetchOne(ctx, client, cfg.SourceURL, cfg.DestDir, name, now)
		if err != nil {
			continue
		}
		m.Assets = append(m.Assets, entry)
	}

	manifestPath := filepath.Join(cfg.DestDir, "manifest.json")
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("assetfetch: encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return fmt.Errorf("assetfetch: writing %s: %w", manifestPath, err)
	}
	return nil
}

func fetchOne(ctx context.Context, client *http.Client, baseURL, destDir, name string, now func() time.Time) (manifestEntry, error) {
	url := baseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return manifestEntry{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return manifestEntry{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return manifestEntry{}, fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}

	destPath := filepath.Join(destDir, name)
	f, err := os.Create(destPath)
	if err != nil {
		return manifestEntry{}, err
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return manifestEntry{}, fmt.Errorf("writing %s: %w", destPath, err)
	}

	return manifestEntry{
		Name:       name,
		Bytes:      n,
		SourceURL:  url,
		FetchedUTC: now().UTC().Format(time.RFC3339),
	}, nil
}
