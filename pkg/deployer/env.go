package deployer

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// EnvFileName returns the environment file the systemd unit reads for the
// given app type. Python tooling conventionally reads .env; the Node
// family gets .env.production so a development .env in the repo is left
// alone.
func EnvFileName(appType string) string {
	if appType == validator.TypeFastAPI {
		return ".env"
	}
	return ".env.production"
}

// SetupEnvFile writes the app's environment file, layering (lowest to
// highest): type defaults, operator-supplied variables, then whatever the
// file already contains. PORT is injected only when no layer provides
// one; an operator-authored PORT= line is respected as-is.
func SetupEnvFile(app App, appType string) error {
	path := filepath.Join(app.Dir, EnvFileName(appType))

	existing, err := config.ReadEnvFile(path)
	if err != nil {
		return err
	}

	merged := config.MergeEnvVars(typeDefaults(appType, app), app.EnvVars, existing)
	if _, ok := merged["PORT"]; !ok {
		merged["PORT"] = strconv.Itoa(app.Port)
	}

	if err := config.WriteEnvFile(path, merged, systemKeys(appType)...); err != nil {
		return fmt.Errorf("setup env for %s: %w", app.Domain, err)
	}
	return nil
}

func typeDefaults(appType string, app App) map[string]string {
	switch appType {
	case validator.TypeFastAPI:
		return map[string]string{
			"PYTHONPATH":  app.Dir,
			"HOST":        "0.0.0.0",
			"ENVIRONMENT": "production",
		}
	case validator.TypeNextJS, validator.TypeNodeJS:
		return map[string]string{
			"NODE_ENV": "production",
			"HOSTNAME": "localhost",
		}
	default:
		return nil
	}
}

// systemKeys orders the managed variables at the top of the file.
func systemKeys(appType string) []string {
	if appType == validator.TypeFastAPI {
		return []string{"PYTHONPATH", "PORT", "HOST", "ENVIRONMENT"}
	}
	return []string{"NODE_ENV", "PORT", "HOSTNAME"}
}
