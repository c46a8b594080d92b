// Package localbackend invokes a native OpenSCAD process in a scoped
// temporary workspace, classifies failures, and returns STL bytes.
//
// Every exit path, including timeout and panic recovery, releases the
// temp directory and the subprocess it owns before returning.
package localbackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kuelshammer/marimo-openscad-render/internal/errkind"
)

// DefaultWorkerPoolSize bounds concurrent subprocess invocations so local
// rendering cannot stall the host's cooperative scheduler loop.
const DefaultWorkerPoolSize = 2

// DefaultDeadline is the default per-render timeout for the local backend
// for the local backend.
const DefaultDeadline = 30 * time.Second

const backendTag = "local"

// Backend invokes a native openscad binary over scoped temp workspaces,
// with a bounded worker pool.
type Backend struct {
	binaryPath string
	sem        *semaphore.Weighted
	mkTempDir  func() (string, error)
}

// New constructs a Backend bound to binaryPath, with a worker pool of
// poolSize (DefaultWorkerPoolSize if zero or negative).
func New(binaryPath string, poolSize int) *Backend {
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}
	return &Backend{
		binaryPath: binaryPath,
		sem:        semaphore.NewWeighted(int64(poolSize)),
		mkTempDir:  func() (string, error) { return os.MkdirTemp("", "scadrender-*") },
	}
}

// Render writes SCAD to a workspace file, invokes the binary with STL
// output flags, classifies non-zero exits, reads the result, and
// releases the workspace on every exit path. A panic is recovered here
// and returned as an Unknown error; it is not re-raised.
func (b *Backend) Render(ctx context.Context, scad string, deadline time.Duration) (stl []byte, err error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, errkind.New(errkind.Timeout, backendTag, "waiting for worker pool slot", err)
	}
	defer b.sem.Release(1)

	dir, err := b.mkTempDir()
	if err != nil {
		return nil, errkind.New(errkind.Unknown, backendTag, "could not create workspace", err)
	}
	defer func() {
		_ = os.RemoveAll(dir) // released on every exit path, see panic recovery below
	}()
	defer func() {
		if r := recover(); r != nil {
			err = errkind.New(errkind.Unknown, backendTag, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	scadPath := filepath.Join(dir, "model.scad")
	stlPath := filepath.Join(dir, "model.stl")
	if err := os.WriteFile(scadPath, []byte(scad), 0o600); err != nil {
		return nil, errkind.New(errkind.Unknown, backendTag, "could not write SCAD source", err)
	}

	cmd := exec.CommandContext(ctx, b.binaryPath, "-o", stlPath, scadPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errkind.New(errkind.Timeout, backendTag, "render deadline exceeded", runErr)
		}
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
			return nil, errkind.New(errkind.ToolMissing, backendTag, "openscad binary not found", runErr)
		}
		return nil, classifyFailure(stderr.String(), runErr)
	}

	out, err := os.ReadFile(stlPath)
	if err != nil {
		return nil, errkind.New(errkind.Unknown, backendTag, "could not read STL output", err)
	}
	return out, nil
}

// classifyFailure maps stderr content to the §4.3 step 3 taxonomy.
func classifyFailure(stderr string, cause error) *errkind.RenderError {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "parser error") || strings.Contains(lower, "syntax error"):
		return errkind.New(errkind.SyntaxError, backendTag, firstLine(stderr), cause)
	case strings.Contains(lower, "non-manifold") || strings.Contains(lower, "csg") && strings.Contains(lower, "empty"):
		return errkind.New(errkind.GeometryError, backendTag, firstLine(stderr), cause)
	case strings.Contains(lower, "command not found") || strings.Contains(lower, "no such file"):
		return errkind.New(errkind.ToolMissing, backendTag, firstLine(stderr), cause)
	default:
		return errkind.New(errkind.Unknown, backendTag, firstLine(stderr), cause)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "openscad exited with an error"
	}
	return s
}
