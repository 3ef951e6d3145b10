package deployer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// Detect inspects a source tree and guesses its application type.
// Precedence:
//
//  1. next.config.js / next.config.mjs
//  2. main.py importing fastapi
//  3. package.json (next dep, start script, build-only, default nodejs)
//  4. index.html
//  5. static as the last resort
func Detect(dir string) string {
	if fileExists(filepath.Join(dir, "next.config.js")) ||
		fileExists(filepath.Join(dir, "next.config.mjs")) {
		return validator.TypeNextJS
	}

	if mainPy := filepath.Join(dir, "main.py"); fileExists(mainPy) {
		if data, err := os.ReadFile(mainPy); err == nil &&
			strings.Contains(strings.ToLower(string(data)), "fastapi") {
			return validator.TypeFastAPI
		}
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		pkg, err := ReadPackageJSON(dir)
		if err == nil {
			switch {
			case pkg.HasDependency("next"):
				return validator.TypeNextJS
			case pkg.HasScript("start"):
				return validator.TypeNodeJS
			case pkg.HasScript("build"):
				return validator.TypeStatic
			default:
				return validator.TypeNodeJS
			}
		}
	}

	if fileExists(filepath.Join(dir, "index.html")) {
		return validator.TypeStatic
	}
	return validator.TypeStatic
}
