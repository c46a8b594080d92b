package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run is separated from main so os.Exit never runs inside a unit test.
func run(args []string, stderr *os.File) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var sourceURL, destDir string

	cmd := &cobra.Command{
		Use:   "assetfetch",
		Short: "Downloads the bundled WASM OpenSCAD assets into static/wasm",
		Long: "assetfetch downloads openscad.wasm and openscad.js (and, if present,\n" +
			"fonts.zip and MCAD.zip) from a source URL into the static asset\n" +
			"directory internal/detect and internal/wasmbackend expect, then\n" +
			"writes manifest.json recording what was fetched.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fetchAssets(cmd.Context(), fetchConfig{
				SourceURL: sourceURL,
				DestDir:   destDir,
			})
		},
	}

	cmd.Flags().StringVar(&sourceURL, "source-url", "", "base URL to fetch WASM assets from (required)")
	cmd.Flags().StringVar(&destDir, "dest", "static/wasm", "destination directory for fetched assets")
	cmd.MarkFlagRequired("source-url")

	return cmd
}
