package deployer

import (
	"context"
	"fmt"

	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// NodeJS deploys generic Node.js servers (Express, Fastify, ...).
type NodeJS struct {
	run runner.Runner
}

func (d *NodeJS) Type() string { return validator.TypeNodeJS }

func (d *NodeJS) ValidateStructure(app App) error {
	if err := requireFiles(app.Dir, "package.json"); err != nil {
		return err
	}
	pkg, err := ReadPackageJSON(app.Dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}
	if !pkg.HasScript("start") && app.StartCommand == "" {
		return fmt.Errorf("%w: package.json has no start script and no start command was given", ErrInvalidStructure)
	}
	return nil
}

func (d *NodeJS) InstallDependencies(ctx context.Context, app App) error {
	return installNodeModules(ctx, d.run, app.Dir)
}

func (d *NodeJS) Build(ctx context.Context, app App) error {
	if app.BuildCommand != "" {
		if _, err := d.run.RunIn(ctx, app.Dir, "sh", "-c", app.BuildCommand); err != nil {
			return fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return nil
	}
	// Plain servers often have nothing to build; only run a build script
	// the project actually declares.
	pkg, err := ReadPackageJSON(app.Dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if !pkg.HasScript("build") {
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

func (d *NodeJS) StartCommand(app App) string {
	if app.StartCommand != "" {
		return app.StartCommand
	}
	return "/usr/bin/npm start"
}
