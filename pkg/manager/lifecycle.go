package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/audit"
	"github.com/webfleet-sh/webfleet/pkg/deployer"
	"github.com/webfleet-sh/webfleet/pkg/nginx"
	"github.com/webfleet-sh/webfleet/pkg/registry"
	"github.com/webfleet-sh/webfleet/pkg/systemd"
)

// RemoveOptions controls app removal.
type RemoveOptions struct {
	// SkipBackup disables the pre-removal archive.
	SkipBackup bool
}

// Remove tears an application down: service, vhost, certificate, files,
// and finally the registry entry. Teardown steps are best-effort; the
// registry entry is only erased once the filesystem is clean.
func (m *Manager) Remove(ctx context.Context, domain string, opts RemoveOptions) (err error) {
	start := time.Now()
	defer func() { m.logActivity(audit.ActivityAppRemoved, domain, "", start, err) }()

	lock, err := m.store.AcquireLock(lockWait)
	if err != nil {
		return fmt.Errorf("registry is locked by another operation: %w", err)
	}
	defer lock.Release()

	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}

	appDir := m.cfg.Paths.AppDir(domain)
	if !opts.SkipBackup {
		if _, err := os.Stat(appDir); err == nil {
			if _, err := m.backups.Backup(ctx, domain, appDir); err != nil {
				m.progress.Note("final backup failed: %v", err)
			}
		}
	}

	if deployer.NeedsService(app.AppType) {
		if err := m.systemd.RemoveUnit(ctx, domain); err != nil {
			m.progress.Note("service cleanup: %v", err)
		}
	}
	if err := m.nginx.RemoveVhost(domain); err != nil {
		m.progress.Note("nginx cleanup: %v", err)
	}
	if app.SSL {
		if err := m.ssl.Remove(ctx, domain); err != nil {
			m.progress.Note("certificate cleanup: %v", err)
		} else {
			m.logActivity(audit.ActivitySSLRemoved, domain, app.AppType, time.Now(), nil)
		}
	}
	if err := os.RemoveAll(appDir); err != nil {
		return fmt.Errorf("remove %s: %w", appDir, err)
	}
	os.RemoveAll(m.cfg.Paths.AppLogDir(domain))
	if err := m.nginx.Reload(ctx); err != nil {
		m.progress.Note("nginx reload: %v", err)
	}

	if err := doc.Remove(domain); err != nil {
		return err
	}
	return m.store.Save(doc)
}

// Update pulls the latest source for domain and rebuilds in place. The app
// serves a maintenance page while updating; on failure the pre-update
// backup is restored and the previous version restarted.
func (m *Manager) Update(ctx context.Context, domain string) (err error) {
	start := time.Now()
	defer func() { m.logActivity(audit.ActivityAppUpdated, domain, "", start, err) }()

	lock, err := m.store.AcquireLock(lockWait)
	if err != nil {
		return fmt.Errorf("registry is locked by another operation: %w", err)
	}
	defer lock.Release()

	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}
	appDir := m.cfg.Paths.AppDir(domain)
	if !m.git.IsRepository(ctx, appDir) {
		return fmt.Errorf("%s was not deployed from git, redeploy it instead", domain)
	}

	backupPath, err := m.backups.Backup(ctx, domain, appDir)
	if err != nil {
		return fmt.Errorf("pre-update backup: %w", err)
	}

	vhost := m.appVhost(app)
	if err := m.nginx.SetMaintenance(ctx, vhost, true); err != nil {
		m.progress.Note("maintenance page not shown: %v", err)
	}
	restoreNginx := func() {
		if err := m.nginx.SetMaintenance(ctx, vhost, false); err != nil {
			m.log.Warn().Err(err).Str("domain", domain).Msg("restore vhost after update")
		}
	}

	if deployer.NeedsService(app.AppType) {
		if err := m.systemd.Stop(ctx, domain); err != nil {
			m.progress.Note("stop before update: %v", err)
		}
	}

	if err := m.rebuild(ctx, doc, app, appDir); err != nil {
		m.progress.Note("update failed, restoring previous version: %v", err)
		if restoreErr := m.backups.Restore(ctx, backupPath, appDir); restoreErr != nil {
			m.log.Error().Err(restoreErr).Str("domain", domain).Msg("restore after failed update")
		}
		if deployer.NeedsService(app.AppType) {
			if _, startErr := m.systemd.StartAndVerify(ctx, domain); startErr != nil {
				m.log.Error().Err(startErr).Str("domain", domain).Msg("restart previous version")
			}
		}
		restoreNginx()
		return err
	}

	restoreNginx()
	if err := m.nginx.Reload(ctx); err != nil {
		m.progress.Note("nginx reload: %v", err)
	}

	app.LastUpdated = registry.Now()
	app.Status = "active"
	return m.store.Save(doc)
}

// rebuild refreshes source and artifacts for an already-deployed app.
func (m *Manager) rebuild(ctx context.Context, doc *registry.Document, app *registry.App, appDir string) error {
	// the app dir is owned by www-data, git refuses to touch it otherwise
	m.run.Run(ctx, "git", "config", "--global", "--add", "safe.directory", appDir)

	res, err := m.git.Update(ctx, appDir, app.Branch)
	if err != nil {
		return err
	}
	if res.Fallback {
		m.progress.Note("branch %q gone from remote, tracking %q now", app.Branch, res.Branch)
		app.Branch = res.Branch
	}

	if _, err := m.run.RunSudo(ctx, "chown", "-R", "www-data:www-data", appDir); err != nil {
		m.progress.Note("ownership fixup: %v", err)
	}

	dep, err := deployer.New(app.AppType, m.run)
	if err != nil {
		return err
	}
	dApp := deployer.App{
		Domain:       app.Domain,
		Dir:          appDir,
		Port:         app.Port,
		BuildCommand: app.BuildCommand,
		StartCommand: app.StartCommand,
		EnvVars:      app.EnvVars,
	}
	if m.dependenciesMissing(app.AppType, appDir) {
		if err := dep.InstallDependencies(ctx, dApp); err != nil {
			return err
		}
	}
	if err := dep.Build(ctx, dApp); err != nil {
		return err
	}
	if deployer.NeedsService(app.AppType) {
		if err := deployer.SetupEnvFile(dApp, app.AppType); err != nil {
			m.progress.Note("environment file: %v", err)
		}
		verdict, err := m.systemd.StartAndVerify(ctx, app.Domain)
		if err != nil {
			return err
		}
		if verdict == systemd.ReadinessUnconfirmed {
			m.progress.Note("service restarted but logged no recognizable startup message")
		}
	}
	return nil
}

func (m *Manager) dependenciesMissing(appType, appDir string) bool {
	var marker string
	switch appType {
	case "fastapi":
		marker = ".venv"
	case "static":
		return false
	default:
		marker = "node_modules"
	}
	_, err := os.Stat(filepath.Join(appDir, marker))
	return err != nil
}

// Restart restarts the service and reverifies readiness.
func (m *Manager) Restart(ctx context.Context, domain string) (err error) {
	start := time.Now()
	defer func() { m.logActivity(audit.ActivityAppRestarted, domain, "", start, err) }()

	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}
	if !deployer.NeedsService(app.AppType) {
		return fmt.Errorf("%s is a static site, there is no service to restart", domain)
	}
	if err := m.systemd.Restart(ctx, domain); err != nil {
		return err
	}
	if !m.systemd.IsActive(ctx, domain) {
		logs, _ := m.systemd.Logs(ctx, domain, 10)
		return fmt.Errorf("%s did not come back after restart: %s", app.ServiceName(), logs)
	}
	return nil
}

// Logs returns the last n journal lines for domain's service.
func (m *Manager) Logs(ctx context.Context, domain string, n int) (string, error) {
	doc, err := m.store.Load()
	if err != nil {
		return "", err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return "", err
	}
	if !deployer.NeedsService(app.AppType) {
		return "", fmt.Errorf("%s is a static site, nginx serves it directly", domain)
	}
	return m.systemd.Logs(ctx, domain, n)
}

// FollowLogs streams domain's journal to out until ctx is cancelled.
func (m *Manager) FollowLogs(ctx context.Context, out io.Writer, domain string, n int) error {
	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}
	if !deployer.NeedsService(app.AppType) {
		return fmt.Errorf("%s is a static site, nginx serves it directly", domain)
	}
	return m.systemd.Follow(ctx, out, domain, n)
}

// RepairApp regenerates every managed artifact for domain from its
// registry record: env file, vhost, unit, then a restart.
func (m *Manager) RepairApp(ctx context.Context, domain string) (err error) {
	start := time.Now()
	defer func() { m.logActivity(audit.ActivityAppRepaired, domain, "", start, err) }()

	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}
	appDir := m.cfg.Paths.AppDir(domain)
	if _, err := os.Stat(appDir); err != nil {
		return fmt.Errorf("app directory %s is missing, redeploy instead: %w", appDir, err)
	}

	dep, err := deployer.New(app.AppType, m.run)
	if err != nil {
		return err
	}
	dApp := deployer.App{
		Domain:       app.Domain,
		Dir:          appDir,
		Port:         app.Port,
		BuildCommand: app.BuildCommand,
		StartCommand: app.StartCommand,
		EnvVars:      app.EnvVars,
	}

	if deployer.NeedsService(app.AppType) {
		if err := deployer.SetupEnvFile(dApp, app.AppType); err != nil {
			return err
		}
	}
	if err := m.nginx.EnsureRateLimitZone(); err != nil {
		m.progress.Note("rate limit zone: %v", err)
	}
	if err := m.nginx.CreateVhost(ctx, m.appVhost(app)); err != nil {
		return err
	}
	if deployer.NeedsService(app.AppType) {
		logDir := m.cfg.Paths.AppLogDir(domain)
		os.MkdirAll(logDir, 0o755)
		unit := systemd.Unit{
			Domain:       app.Domain,
			AppType:      app.AppType,
			Port:         app.Port,
			AppDir:       appDir,
			EnvFile:      filepath.Join(appDir, deployer.EnvFileName(app.AppType)),
			StartCommand: dep.StartCommand(dApp),
			LogDir:       logDir,
		}
		if err := m.systemd.CreateUnit(ctx, unit); err != nil {
			return err
		}
		if _, err := m.systemd.StartAndVerify(ctx, domain); err != nil {
			return err
		}
	}
	if err := m.nginx.Reload(ctx); err != nil {
		m.progress.Note("nginx reload: %v", err)
	}

	app.LastUpdated = registry.Now()
	app.Status = "active"
	return m.store.Save(doc)
}

// ProvisionSSL issues a certificate for an already-deployed app and flips
// its registry flag.
func (m *Manager) ProvisionSSL(ctx context.Context, domain string) error {
	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return err
	}
	if !m.dns.Resolves(ctx, domain) {
		return fmt.Errorf("%s does not resolve, point DNS at this host first", domain)
	}
	if err := m.ssl.Provision(ctx, domain); err != nil {
		return err
	}
	m.logActivity(audit.ActivitySSLProvisioned, domain, app.AppType, time.Now(), nil)

	app.SSL = true
	app.LastUpdated = registry.Now()
	return m.store.Save(doc)
}

// AppStatus is the live view of one application.
type AppStatus struct {
	App          *registry.App
	ServiceState string
	VhostExists  bool
	VhostEnabled bool
	Reachable    bool
}

// Status collects the live state of one app.
func (m *Manager) Status(ctx context.Context, domain string) (*AppStatus, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return nil, err
	}
	status := &AppStatus{
		App:          app,
		VhostExists:  m.nginx.VhostExists(domain),
		VhostEnabled: m.nginx.VhostEnabled(domain),
	}
	if deployer.NeedsService(app.AppType) {
		status.ServiceState = m.systemd.Status(ctx, domain)
		status.Reachable = m.probe(ctx, app.Port) == nil
	} else {
		status.ServiceState = "static"
		status.Reachable = status.VhostEnabled
	}
	return status, nil
}

func (m *Manager) appVhost(app *registry.App) nginx.VHost {
	return nginx.VHost{
		Domain:  app.Domain,
		Port:    app.Port,
		AppType: app.AppType,
		Mode:    nginx.ModeNormal,
		SSL:     app.SSL,
		Root:    m.cfg.Paths.AppDir(app.Domain),
	}
}
