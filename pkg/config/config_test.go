package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "webfleet.yaml"))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/var/www/apps", cfg.Paths.AppsDir)
	assert.Equal(t, "/etc/webfleet/registry.json", cfg.Paths.RegistryFile)
	assert.Equal(t, "/etc/nginx/sites-available", cfg.Paths.NginxAvailable)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webfleet.yaml")
	content := `paths:
  apps_dir: /srv/apps
  registry_file: /srv/webfleet/registry.json
cert_email: ops@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/apps", cfg.Paths.AppsDir)
	assert.Equal(t, "/srv/webfleet/registry.json", cfg.Paths.RegistryFile)
	assert.Equal(t, "ops@example.com", cfg.CertEmail)
	// untouched keys keep defaults
	assert.Equal(t, "/etc/systemd/system", cfg.Paths.SystemdDir)
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "webfleet.yaml")
	cfg := Default()
	cfg.CertEmail = "admin@example.com"
	require.NoError(t, cfg.Write(path))

	v := viper.New()
	v.SetConfigFile(path)
	loaded, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, cfg.CertEmail, loaded.CertEmail)
	assert.Equal(t, cfg.Paths, loaded.Paths)
}

func TestAppDirHelpers(t *testing.T) {
	p := DefaultPaths()
	assert.Equal(t, "/var/www/apps/example.com", p.AppDir("example.com"))
	assert.Equal(t, "/var/log/apps/example.com", p.AppLogDir("example.com"))
}

func TestReadEnvFileMissingIsEmpty(t *testing.T) {
	vars, err := ReadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestEnvFileRoundTripAndOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	vars := map[string]string{
		"PORT":     "3000",
		"NODE_ENV": "production",
		"API_KEY":  "secret value",
		"ZED":      "last",
	}
	require.NoError(t, WriteEnvFile(path, vars, "NODE_ENV", "PORT"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, len(content) > 0)
	// system keys come first, in the order requested
	lines := content
	assert.Regexp(t, `(?s)^NODE_ENV=production\nPORT=3000\n`, lines)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ReadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "secret value", loaded["API_KEY"])
	assert.Equal(t, "3000", loaded["PORT"])
}

func TestMergeEnvVarsPriority(t *testing.T) {
	merged := MergeEnvVars(
		map[string]string{"A": "default", "B": "default"},
		map[string]string{"B": "override", "C": "new"},
	)
	assert.Equal(t, "default", merged["A"])
	assert.Equal(t, "override", merged["B"])
	assert.Equal(t, "new", merged["C"])
}
