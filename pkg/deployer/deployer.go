// Package deployer implements the per-framework deployment steps: source
// tree validation, dependency installation, builds, start commands and
// environment files. One Deployer per supported application type.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// Sentinel errors surfaced to the CLI.
var (
	ErrUnknownType      = errors.New("unknown app type")
	ErrInvalidStructure = errors.New("invalid project structure")
	ErrBuildFailed      = errors.New("build failed")
)

// App carries the per-deployment inputs a Deployer needs.
type App struct {
	Domain       string
	Dir          string
	Port         int
	BuildCommand string
	StartCommand string
	EnvVars      map[string]string
}

// Deployer prepares one application type for serving.
type Deployer interface {
	// Type returns the app type this deployer handles.
	Type() string

	// ValidateStructure checks that the source tree looks like a
	// project of this type before anything is installed.
	ValidateStructure(app App) error

	// InstallDependencies fetches the runtime dependencies.
	InstallDependencies(ctx context.Context, app App) error

	// Build compiles or verifies the application.
	Build(ctx context.Context, app App) error

	// StartCommand returns the command systemd runs, honoring an
	// operator override. Empty means the type needs no process.
	StartCommand(app App) string
}

// New returns the deployer for appType.
func New(appType string, run runner.Runner) (Deployer, error) {
	switch appType {
	case validator.TypeNextJS:
		return &NextJS{run: run}, nil
	case validator.TypeNodeJS:
		return &NodeJS{run: run}, nil
	case validator.TypeFastAPI:
		return &FastAPI{run: run}, nil
	case validator.TypeStatic:
		return &Static{run: run}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, appType)
	}
}

// NeedsService reports whether the app type runs as a systemd unit.
// Static sites are served straight from disk by nginx.
func NeedsService(appType string) bool {
	return appType != validator.TypeStatic
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// requireFiles returns ErrInvalidStructure naming the first missing file.
func requireFiles(dir string, files ...string) error {
	for _, f := range files {
		if !fileExists(filepath.Join(dir, f)) {
			return fmt.Errorf("%w: missing %s", ErrInvalidStructure, f)
		}
	}
	return nil
}
