package deployer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// defaultPythonPackages is installed when a FastAPI project ships no
// requirements.txt.
var defaultPythonPackages = []string{
	"fastapi",
	"uvicorn[standard]",
	"python-multipart",
	"python-dotenv",
}

// FastAPI deploys FastAPI applications under uvicorn in a per-app
// virtualenv.
type FastAPI struct {
	run runner.Runner
}

func (d *FastAPI) Type() string { return validator.TypeFastAPI }

func (d *FastAPI) ValidateStructure(app App) error {
	if err := requireFiles(app.Dir, "main.py"); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(app.Dir, "main.py"))
	if err != nil {
		return fmt.Errorf("%w: read main.py: %v", ErrInvalidStructure, err)
	}
	src := string(data)
	if !strings.Contains(src, "from fastapi import") && !strings.Contains(src, "import fastapi") {
		return fmt.Errorf("%w: main.py has no fastapi import", ErrInvalidStructure)
	}
	if !strings.Contains(src, "app = ") && !strings.Contains(src, "application = ") {
		return fmt.Errorf("%w: main.py defines no app or application object", ErrInvalidStructure)
	}
	return nil
}

// InstallDependencies recreates the virtualenv from scratch. Reusing a
// venv across deployments leaves stale packages behind when requirements
// shrink.
func (d *FastAPI) InstallDependencies(ctx context.Context, app App) error {
	venv := filepath.Join(app.Dir, ".venv")
	if err := os.RemoveAll(venv); err != nil {
		return fmt.Errorf("remove stale venv: %w", err)
	}
	if _, err := d.run.RunIn(ctx, app.Dir, "python3", "-m", "venv", ".venv"); err != nil {
		return fmt.Errorf("create venv: %w", err)
	}

	pip := filepath.Join(venv, "bin", "pip")
	if _, err := d.run.RunIn(ctx, app.Dir, pip, "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("upgrade pip: %w", err)
	}

	if fileExists(filepath.Join(app.Dir, "requirements.txt")) {
		if _, err := d.run.RunIn(ctx, app.Dir, pip, "install", "-r", "requirements.txt"); err != nil {
			return fmt.Errorf("install requirements: %w", err)
		}
	} else {
		args := append([]string{"install"}, defaultPythonPackages...)
		if _, err := d.run.RunIn(ctx, app.Dir, pip, args...); err != nil {
			return fmt.Errorf("install default packages: %w", err)
		}
	}

	// requirements.txt may omit the server itself.
	if _, err := d.run.RunIn(ctx, app.Dir, pip, "show", "uvicorn"); err != nil {
		if _, err := d.run.RunIn(ctx, app.Dir, pip, "install", "uvicorn[standard]"); err != nil {
			return fmt.Errorf("install uvicorn: %w", err)
		}
	}
	return nil
}

// Build byte-compiles the entrypoint to catch syntax errors before the
// service starts.
func (d *FastAPI) Build(ctx context.Context, app App) error {
	if app.BuildCommand != "" {
		if _, err := d.run.RunIn(ctx, app.Dir, "sh", "-c", app.BuildCommand); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return nil
	}
	python := filepath.Join(app.Dir, ".venv", "bin", "python")
	if _, err := d.run.RunIn(ctx, app.Dir, python, "-m", "py_compile", "main.py"); err != nil {
		return fmt.Errorf("%w: main.py does not compile: %v", ErrBuildFailed, err)
	}
	return nil
}

func (d *FastAPI) StartCommand(app App) string {
	if app.StartCommand != "" {
		return app.StartCommand
	}
	return fmt.Sprintf(".venv/bin/python -m uvicorn main:app --host 0.0.0.0 --port %d --workers 1", app.Port)
}
