// Package nginx renders and installs virtual host configurations and
// drives nginx itself (config test, reload, rate-limit zone).
package nginx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/runner"
)

// rateLimitZone is shared by all managed vhosts.
const rateLimitZone = `limit_req_zone $binary_remote_addr zone=webapp_global:10m rate=10r/s;
`

const maintenancePage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Maintenance in progress</title>
    <style>
        body { font-family: -apple-system, sans-serif; display: flex; align-items: center;
               justify-content: center; min-height: 100vh; margin: 0; background: #f5f5f5; }
        .card { text-align: center; padding: 3rem; background: #fff; border-radius: 8px;
                box-shadow: 0 2px 8px rgba(0,0,0,0.1); }
        h1 { color: #333; margin-bottom: 0.5rem; }
        p { color: #666; }
    </style>
</head>
<body>
    <div class="card">
        <h1>We&rsquo;ll be right back</h1>
        <p>This site is being updated. Please check again in a few minutes.</p>
    </div>
</body>
</html>
`

// Manager installs vhosts and controls the nginx process.
type Manager struct {
	run   runner.Runner
	paths config.Paths
}

// NewManager creates an nginx manager.
func NewManager(run runner.Runner, paths config.Paths) *Manager {
	return &Manager{run: run, paths: paths}
}

// CreateVhost renders the vhost for v and installs it: write to a temp
// file, atomically move it into place, symlink it into sites-enabled,
// then test the configuration. A failing test rolls the site back out so
// nginx keeps serving everything else.
func (m *Manager) CreateVhost(ctx context.Context, v VHost) error {
	m.fillDefaults(&v)

	content, err := Render(v)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.paths.NginxAvailable, 0o755); err != nil {
		return fmt.Errorf("create sites-available dir: %w", err)
	}
	if err := os.MkdirAll(m.paths.NginxEnabled, 0o755); err != nil {
		return fmt.Errorf("create sites-enabled dir: %w", err)
	}

	finalPath := filepath.Join(m.paths.NginxAvailable, v.Domain)

	var previous []byte
	if data, err := os.ReadFile(finalPath); err == nil {
		previous = data
	}

	tempPath := finalPath + ".temp"
	if err := os.WriteFile(tempPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write vhost temp file: %w", err)
	}
	defer os.Remove(tempPath)

	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("install vhost for %s: %w", v.Domain, err)
	}
	if err := m.enableSite(v.Domain); err != nil {
		return err
	}

	if err := m.Test(ctx); err != nil {
		if previous != nil {
			os.WriteFile(finalPath, previous, 0o644)
		} else {
			m.disableSite(v.Domain)
			os.Remove(finalPath)
		}
		return fmt.Errorf("vhost for %s failed nginx config test: %w", v.Domain, err)
	}
	return nil
}

// RemoveVhost disables and deletes the vhost for domain.
func (m *Manager) RemoveVhost(domain string) error {
	m.disableSite(domain)
	configPath := filepath.Join(m.paths.NginxAvailable, domain)
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vhost for %s: %w", domain, err)
	}
	return nil
}

// SetMaintenance re-renders the vhost in the requested mode and reloads.
// Maintenance is a first-class render mode, never an edit of the live
// file.
func (m *Manager) SetMaintenance(ctx context.Context, v VHost, on bool) error {
	if on {
		v.Mode = ModeMaintenance
		if err := m.WriteMaintenancePage(); err != nil {
			return err
		}
	} else {
		v.Mode = ModeNormal
	}
	if err := m.CreateVhost(ctx, v); err != nil {
		return err
	}
	return m.Reload(ctx)
}

// WriteMaintenancePage installs the static maintenance page.
func (m *Manager) WriteMaintenancePage() error {
	if err := os.MkdirAll(m.paths.MaintenanceDir, 0o755); err != nil {
		return fmt.Errorf("create maintenance dir: %w", err)
	}
	page := filepath.Join(m.paths.MaintenanceDir, "index.html")
	if err := os.WriteFile(page, []byte(maintenancePage), 0o644); err != nil {
		return fmt.Errorf("write maintenance page: %w", err)
	}
	return nil
}

// Test runs nginx -t and requires both success phrases in its output.
func (m *Manager) Test(ctx context.Context) error {
	res, err := m.run.RunSudo(ctx, "nginx", "-t")
	if err != nil {
		return fmt.Errorf("nginx -t: %w", err)
	}
	combined := res.Combined()
	if !strings.Contains(combined, "syntax is ok") || !strings.Contains(combined, "test is successful") {
		return fmt.Errorf("nginx -t did not confirm a valid configuration: %s", strings.TrimSpace(combined))
	}
	return nil
}

// Reload reloads nginx via systemd.
func (m *Manager) Reload(ctx context.Context) error {
	if _, err := m.run.RunSudo(ctx, "systemctl", "reload", "nginx"); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	return nil
}

// EnsureRateLimitZone installs the shared limit_req zone into conf.d
// unless it is already defined there or in the main config.
func (m *Manager) EnsureRateLimitZone() error {
	confD := filepath.Join(filepath.Dir(m.paths.NginxConf), "conf.d")
	zonePath := filepath.Join(confD, "webfleet-rate-limit.conf")

	if data, err := os.ReadFile(zonePath); err == nil && strings.Contains(string(data), "webapp_global") {
		return nil
	}
	if data, err := os.ReadFile(m.paths.NginxConf); err == nil && strings.Contains(string(data), "webapp_global") {
		return nil
	}

	if err := os.MkdirAll(confD, 0o755); err != nil {
		return fmt.Errorf("create conf.d: %w", err)
	}
	if err := os.WriteFile(zonePath, []byte(rateLimitZone), 0o644); err != nil {
		return fmt.Errorf("write rate limit zone: %w", err)
	}
	return nil
}

// VhostExists reports whether a vhost file is installed for domain.
func (m *Manager) VhostExists(domain string) bool {
	_, err := os.Stat(filepath.Join(m.paths.NginxAvailable, domain))
	return err == nil
}

// VhostEnabled reports whether the domain's vhost is linked into
// sites-enabled.
func (m *Manager) VhostEnabled(domain string) bool {
	_, err := os.Lstat(filepath.Join(m.paths.NginxEnabled, domain))
	return err == nil
}

func (m *Manager) enableSite(domain string) error {
	target := filepath.Join(m.paths.NginxAvailable, domain)
	link := filepath.Join(m.paths.NginxEnabled, domain)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old symlink for %s: %w", domain, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("enable site %s: %w", domain, err)
	}
	return nil
}

func (m *Manager) disableSite(domain string) {
	os.Remove(filepath.Join(m.paths.NginxEnabled, domain))
}

func (m *Manager) fillDefaults(v *VHost) {
	if v.Mode == "" {
		v.Mode = ModeNormal
	}
	if v.LogDir == "" {
		v.LogDir = m.paths.LogDir
	}
	if v.Root == "" {
		v.Root = m.paths.AppDir(v.Domain)
	}
	if v.MaintenanceDir == "" {
		v.MaintenanceDir = m.paths.MaintenanceDir
	}
}
