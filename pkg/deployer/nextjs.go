package deployer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// NextJS deploys Next.js applications in standalone server mode behind
// the nginx proxy.
type NextJS struct {
	run runner.Runner
}

func (d *NextJS) Type() string { return validator.TypeNextJS }

func (d *NextJS) ValidateStructure(app App) error {
	if err := requireFiles(app.Dir, "package.json"); err != nil {
		return err
	}
	pkg, err := ReadPackageJSON(app.Dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}
	if !pkg.HasDependency("next") {
		return fmt.Errorf("%w: next not found in dependencies", ErrInvalidStructure)
	}
	if !pkg.HasDependency("react") {
		return fmt.Errorf("%w: react not found in dependencies", ErrInvalidStructure)
	}
	for _, dir := range []string{"pages", "src", "app"} {
		if dirExists(filepath.Join(app.Dir, dir)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no pages/, src/ or app/ directory found", ErrInvalidStructure)
}

func (d *NextJS) InstallDependencies(ctx context.Context, app App) error {
	return installNodeModules(ctx, d.run, app.Dir)
}

func (d *NextJS) Build(ctx context.Context, app App) error {
	if app.BuildCommand != "" {
		if _, err := d.run.RunIn(ctx, app.Dir, "sh", "-c", app.BuildCommand); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
	} else if usesYarn(app.Dir) {
		if _, err := d.run.RunIn(ctx, app.Dir, "yarn", "build"); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
	} else {
		if _, err := d.run.RunIn(ctx, app.Dir, "npm", "run", "build"); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
	}

	// A successful next build always leaves a .next directory behind.
	if !dirExists(filepath.Join(app.Dir, ".next")) {
		return fmt.Errorf("%w: .next directory missing after build", ErrBuildFailed)
	}
	return nil
}

func (d *NextJS) StartCommand(app App) string {
	if app.StartCommand != "" {
		return app.StartCommand
	}
	return fmt.Sprintf("./node_modules/.bin/next start --port %d", app.Port)
}

// installNodeModules runs the package-manager install appropriate for the
// lockfile present in dir.
func installNodeModules(ctx context.Context, run runner.Runner, dir string) error {
	if usesYarn(dir) {
		if _, err := run.RunIn(ctx, dir, "yarn", "install", "--frozen-lockfile"); err != nil {
			return fmt.Errorf("yarn install: %w", err)
		}
		return nil
	}
	args := npmInstallArgs(dir)
	if _, err := run.RunIn(ctx, dir, "npm", args...); err != nil {
		return fmt.Errorf("npm %s: %w", args[0], err)
	}
	return nil
}
