package deployer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PackageJSON is the subset of package.json the deployers care about.
type PackageJSON struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ReadPackageJSON parses dir/package.json.
func ReadPackageJSON(dir string) (*PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("read package.json: %w", err)
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	return &pkg, nil
}

// HasScript reports whether the named npm script is declared.
func (p *PackageJSON) HasScript(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Scripts[name]
	return ok
}

// HasDependency looks for name in dependencies or devDependencies.
func (p *PackageJSON) HasDependency(name string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.Dependencies[name]; ok {
		return true
	}
	_, ok := p.DevDependencies[name]
	return ok
}

// usesYarn reports whether the project pins its packages with yarn.
func usesYarn(dir string) bool {
	return fileExists(filepath.Join(dir, "yarn.lock"))
}

// npmInstallArgs picks a reproducible install when a lockfile exists.
func npmInstallArgs(dir string) []string {
	if fileExists(filepath.Join(dir, "package-lock.json")) {
		return []string{"ci"}
	}
	return []string{"install"}
}
