package deployer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// Static deploys plain sites served straight from disk by nginx. No
// systemd unit is created for this type.
type Static struct {
	run runner.Runner
}

func (d *Static) Type() string { return validator.TypeStatic }

func (d *Static) ValidateStructure(app App) error {
	if fileExists(filepath.Join(app.Dir, "index.html")) {
		return nil
	}
	// A generator project is fine too, as long as it declares a build.
	if fileExists(filepath.Join(app.Dir, "package.json")) {
		pkg, err := ReadPackageJSON(app.Dir)
		if err == nil && (pkg.HasScript("build") || app.BuildCommand != "") {
			return nil
		}
	}
	return fmt.Errorf("%w: no index.html and no build step to produce one", ErrInvalidStructure)
}

func (d *Static) InstallDependencies(ctx context.Context, app App) error {
	if !fileExists(filepath.Join(app.Dir, "package.json")) {
		return nil
	}
	return installNodeModules(ctx, d.run, app.Dir)
}

func (d *Static) Build(ctx context.Context, app App) error {
	if app.BuildCommand != "" {
		if _, err := d.run.RunIn(ctx, app.Dir, "sh", "-c", app.BuildCommand); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return nil
	}
	if !fileExists(filepath.Join(app.Dir, "package.json")) {
		return nil
	}
	pkg, err := ReadPackageJSON(app.Dir)
	if err != nil || !pkg.HasScript("build") {
		return nil
	}
	if usesYarn(app.Dir) {
		if _, err := d.run.RunIn(ctx, app.Dir, "yarn", "build"); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return nil
	}
	if _, err := d.run.RunIn(ctx, app.Dir, "npm", "run", "build"); err != nil {
		return fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	return nil
}

func (d *Static) StartCommand(App) string { return "" }
