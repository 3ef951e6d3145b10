package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/audit"
	"github.com/webfleet-sh/webfleet/pkg/deployer"
	"github.com/webfleet-sh/webfleet/pkg/nginx"
	"github.com/webfleet-sh/webfleet/pkg/registry"
	"github.com/webfleet-sh/webfleet/pkg/systemd"
	"github.com/webfleet-sh/webfleet/pkg/telemetry"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

// DeployRequest carries everything needed to deploy one application.
type DeployRequest struct {
	Domain       string
	Source       string
	Branch       string
	AppType      string
	Port         int
	SSL          bool
	BuildCommand string
	StartCommand string
	EnvVars      map[string]string
}

// deployStages are the labels of the deploy state machine, in order.
var deployStages = []string{
	"validate inputs",
	"back up existing deployment",
	"fetch source",
	"validate project structure",
	"install dependencies",
	"build application",
	"write environment file",
	"configure nginx",
	"create service unit",
	"start and verify service",
	"reload nginx",
	"check connectivity",
	"provision TLS certificate",
	"register application",
}

// deploy tracks the per-attempt state needed for rollback.
type deploy struct {
	req        DeployRequest
	doc        *registry.Document
	appDir     string
	backupPath string
	isUpdate   bool
	unitMade   bool
	vhostMade  bool
	stage      int
}

// Deploy runs the full deployment state machine for req. Fatal stage
// failures roll back every partial artifact; non-fatal ones degrade with
// a warning. The registry is only written on success.
func (m *Manager) Deploy(ctx context.Context, req DeployRequest) (err error) {
	start := time.Now()
	ctx, span := telemetry.TraceDeploy(ctx, req.Domain, req.AppType)
	defer span.End()

	m.logActivity(audit.ActivityDeployStarted, req.Domain, req.AppType, start, nil)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
			m.logActivity(audit.ActivityDeployFailed, req.Domain, req.AppType, start, err)
		} else {
			m.logActivity(audit.ActivityDeployCompleted, req.Domain, req.AppType, start, nil)
		}
	}()

	lock, err := m.store.AcquireLock(lockWait)
	if err != nil {
		return fmt.Errorf("registry is locked by another operation: %w", err)
	}
	defer lock.Release()

	d := &deploy{req: req, appDir: m.cfg.Paths.AppDir(req.Domain)}

	if err := m.runStage(ctx, d, 1, m.stageValidate); err != nil {
		return err
	}
	if err := m.runStage(ctx, d, 2, m.stageBackup); err != nil {
		m.progress.Note("backup failed, continuing without one: %v", err)
	}
	fatal := []func(context.Context, *deploy) error{
		m.stageFetch,
		m.stageValidateStructure,
		m.stageInstall,
		m.stageBuild,
	}
	for i, stage := range fatal {
		if err := m.runStage(ctx, d, 3+i, stage); err != nil {
			m.rollback(ctx, d)
			return err
		}
	}
	if err := m.runStage(ctx, d, 7, m.stageEnvFile); err != nil {
		m.progress.Note("environment file not written: %v", err)
	}
	if err := m.runStage(ctx, d, 8, m.stageNginx); err != nil {
		m.progress.Note("nginx config failed, app reachable on port %d only: %v", d.req.Port, err)
	}
	if err := m.runStage(ctx, d, 9, m.stageService); err != nil {
		m.rollback(ctx, d)
		return err
	}
	if err := m.runStage(ctx, d, 10, m.stageStart); err != nil {
		m.rollback(ctx, d)
		return err
	}
	if err := m.runStage(ctx, d, 11, m.stageReload); err != nil {
		m.progress.Note("nginx reload failed: %v", err)
	}
	if err := m.runStage(ctx, d, 12, m.stageProbe); err != nil {
		m.progress.Note("connectivity unconfirmed: %v", err)
	}
	if err := m.runStage(ctx, d, 13, m.stageTLS); err != nil {
		m.progress.Note("TLS provisioning failed, serving HTTP only: %v", err)
		d.req.SSL = false
	}
	return m.runStage(ctx, d, 14, m.stageRegister)
}

func (m *Manager) runStage(ctx context.Context, d *deploy, number int, fn func(context.Context, *deploy) error) error {
	label := deployStages[number-1]
	d.stage = number
	m.progress.StageStart(number, len(deployStages), label)

	ctx, span := telemetry.TraceStage(ctx, label, d.req.Domain)
	defer span.End()

	if err := fn(ctx, d); err != nil {
		telemetry.RecordError(ctx, err)
		m.progress.StageFailed(number, len(deployStages), label, err)
		m.log.Error().Err(err).Str("domain", d.req.Domain).Str("stage", label).Msg("stage failed")
		return fmt.Errorf("%s: %w", label, err)
	}
	m.progress.StageDone(number, len(deployStages), label)
	return nil
}

func (m *Manager) stageValidate(ctx context.Context, d *deploy) error {
	req := &d.req
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.AppType == "" {
		req.AppType = validator.TypeNextJS
	}
	if err := validator.Domain(req.Domain); err != nil {
		return err
	}
	if err := validator.Port(req.Port); err != nil {
		return err
	}
	if err := validator.AppType(req.AppType); err != nil {
		return err
	}
	if err := validator.Branch(req.Branch); err != nil {
		return err
	}
	if err := validator.EnvVars(req.EnvVars); err != nil {
		return err
	}
	if req.Source == "" {
		return errors.New("source is required")
	}

	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	d.doc = doc
	if _, err := doc.Get(req.Domain); err == nil {
		return fmt.Errorf("%s is already registered, use update instead", req.Domain)
	}
	if owner, taken := doc.PortOwner(req.Port); taken {
		return fmt.Errorf("port %d is already used by %s", req.Port, owner)
	}
	return nil
}

func (m *Manager) stageBackup(ctx context.Context, d *deploy) error {
	if _, err := os.Stat(d.appDir); err != nil {
		return nil // fresh deploy, nothing to back up
	}
	d.isUpdate = true
	path, err := m.backups.Backup(ctx, d.req.Domain, d.appDir)
	if err != nil {
		return err
	}
	d.backupPath = path
	return nil
}

func (m *Manager) stageFetch(ctx context.Context, d *deploy) error {
	tempDir := d.appDir + "_temp"
	defer os.RemoveAll(tempDir)

	if info, err := os.Stat(d.req.Source); err == nil && info.IsDir() {
		if err := m.copyLocal(ctx, d.req.Source, tempDir); err != nil {
			return err
		}
	} else {
		res, err := m.git.Clone(ctx, d.req.Source, d.req.Branch, tempDir)
		if err != nil {
			return err
		}
		if res.Fallback {
			m.progress.Note("branch %q not found, deployed %q instead", d.req.Branch, res.Branch)
			d.req.Branch = res.Branch
		}
	}

	if err := os.RemoveAll(d.appDir); err != nil {
		return fmt.Errorf("clear %s: %w", d.appDir, err)
	}
	if err := os.Rename(tempDir, d.appDir); err != nil {
		return fmt.Errorf("move source into place: %w", err)
	}
	return nil
}

func (m *Manager) copyLocal(ctx context.Context, source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	res, err := m.run.Run(ctx, "cp", "-r", filepath.Clean(source), dest)
	if err != nil {
		return fmt.Errorf("copy %s: %w: %s", source, err, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (m *Manager) deployerApp(d *deploy) deployer.App {
	return deployer.App{
		Domain:       d.req.Domain,
		Dir:          d.appDir,
		Port:         d.req.Port,
		BuildCommand: d.req.BuildCommand,
		StartCommand: d.req.StartCommand,
		EnvVars:      d.req.EnvVars,
	}
}

func (m *Manager) stageValidateStructure(ctx context.Context, d *deploy) error {
	dep, err := deployer.New(d.req.AppType, m.run)
	if err != nil {
		return err
	}
	return dep.ValidateStructure(m.deployerApp(d))
}

func (m *Manager) stageInstall(ctx context.Context, d *deploy) error {
	dep, err := deployer.New(d.req.AppType, m.run)
	if err != nil {
		return err
	}
	return dep.InstallDependencies(ctx, m.deployerApp(d))
}

func (m *Manager) stageBuild(ctx context.Context, d *deploy) error {
	dep, err := deployer.New(d.req.AppType, m.run)
	if err != nil {
		return err
	}
	return dep.Build(ctx, m.deployerApp(d))
}

func (m *Manager) stageEnvFile(ctx context.Context, d *deploy) error {
	if !deployer.NeedsService(d.req.AppType) {
		return nil
	}
	return deployer.SetupEnvFile(m.deployerApp(d), d.req.AppType)
}

// vhost builds the initial render for a deployment. The certificate does
// not exist yet at this point, so the first render always listens on 80;
// re-renders after provisioning go through appVhost and keep the 443
// block.
func (m *Manager) vhost(d *deploy) nginx.VHost {
	return nginx.VHost{
		Domain:  d.req.Domain,
		Port:    d.req.Port,
		AppType: d.req.AppType,
		Mode:    nginx.ModeNormal,
		Root:    d.appDir,
	}
}

func (m *Manager) stageNginx(ctx context.Context, d *deploy) error {
	if err := m.nginx.EnsureRateLimitZone(); err != nil {
		m.progress.Note("rate limit zone: %v", err)
	}
	if err := m.nginx.CreateVhost(ctx, m.vhost(d)); err != nil {
		return err
	}
	d.vhostMade = true
	return nil
}

func (m *Manager) stageService(ctx context.Context, d *deploy) error {
	if !deployer.NeedsService(d.req.AppType) {
		return nil
	}
	dep, err := deployer.New(d.req.AppType, m.run)
	if err != nil {
		return err
	}
	logDir := m.cfg.Paths.AppLogDir(d.req.Domain)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	unit := systemd.Unit{
		Domain:       d.req.Domain,
		AppType:      d.req.AppType,
		Port:         d.req.Port,
		AppDir:       d.appDir,
		EnvFile:      filepath.Join(d.appDir, deployer.EnvFileName(d.req.AppType)),
		StartCommand: dep.StartCommand(m.deployerApp(d)),
		LogDir:       logDir,
	}
	if err := m.systemd.CreateUnit(ctx, unit); err != nil {
		return err
	}
	d.unitMade = true
	return nil
}

func (m *Manager) stageStart(ctx context.Context, d *deploy) error {
	if !deployer.NeedsService(d.req.AppType) {
		return nil
	}
	verdict, err := m.systemd.StartAndVerify(ctx, d.req.Domain)
	if err != nil {
		return err
	}
	if verdict == systemd.ReadinessUnconfirmed {
		m.progress.Note("service is active but logged no recognizable startup message")
	}
	return nil
}

func (m *Manager) stageReload(ctx context.Context, d *deploy) error {
	if !d.vhostMade {
		return nil
	}
	return m.nginx.Reload(ctx)
}

func (m *Manager) stageProbe(ctx context.Context, d *deploy) error {
	if !deployer.NeedsService(d.req.AppType) {
		return nil
	}
	return m.probe(ctx, d.req.Port)
}

func (m *Manager) stageTLS(ctx context.Context, d *deploy) error {
	if !d.req.SSL {
		return nil
	}
	if !m.dns.Resolves(ctx, d.req.Domain) {
		return fmt.Errorf("%s does not resolve yet, point DNS at this host and run the ssl command later", d.req.Domain)
	}
	if err := m.ssl.Provision(ctx, d.req.Domain); err != nil {
		return err
	}
	m.logActivity(audit.ActivitySSLProvisioned, d.req.Domain, d.req.AppType, time.Now(), nil)
	return nil
}

func (m *Manager) stageRegister(ctx context.Context, d *deploy) error {
	now := registry.Now()
	app := &registry.App{
		Domain:       d.req.Domain,
		Port:         d.req.Port,
		AppType:      d.req.AppType,
		Source:       d.req.Source,
		Branch:       d.req.Branch,
		SSL:          d.req.SSL,
		Created:      now,
		LastUpdated:  now,
		Status:       "active",
		BuildCommand: d.req.BuildCommand,
		StartCommand: d.req.StartCommand,
		EnvVars:      d.req.EnvVars,
	}
	if err := d.doc.Add(app); err != nil {
		return err
	}
	return m.store.Save(d.doc)
}

// rollback undoes the partial artifacts of a failed deploy. The registry
// was never written, so only the filesystem and services need cleanup.
func (m *Manager) rollback(ctx context.Context, d *deploy) {
	m.progress.Note("deployment failed at stage %d, rolling back", d.stage)
	m.log.Warn().Str("domain", d.req.Domain).Int("stage", d.stage).Msg("rolling back failed deploy")

	if d.unitMade {
		if err := m.systemd.RemoveUnit(ctx, d.req.Domain); err != nil {
			m.log.Warn().Err(err).Msg("rollback: remove unit")
		}
	}
	if d.vhostMade {
		if err := m.nginx.RemoveVhost(d.req.Domain); err != nil {
			m.log.Warn().Err(err).Msg("rollback: remove vhost")
		}
		if err := m.nginx.Reload(ctx); err != nil {
			m.log.Warn().Err(err).Msg("rollback: reload nginx")
		}
	}
	if err := os.RemoveAll(d.appDir); err != nil {
		m.log.Warn().Err(err).Msg("rollback: remove app dir")
	}
	if d.backupPath != "" {
		if err := m.backups.Restore(ctx, d.backupPath, d.appDir); err != nil {
			m.log.Warn().Err(err).Msg("rollback: restore backup")
		}
	}
}
