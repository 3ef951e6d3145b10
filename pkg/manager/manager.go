// Package manager orchestrates deployments end to end: source fetch, build,
// nginx vhost, systemd unit, TLS and the registry commit.
package manager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/webfleet-sh/webfleet/pkg/audit"
	"github.com/webfleet-sh/webfleet/pkg/backup"
	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/git"
	"github.com/webfleet-sh/webfleet/pkg/nginx"
	"github.com/webfleet-sh/webfleet/pkg/progress"
	"github.com/webfleet-sh/webfleet/pkg/registry"
	"github.com/webfleet-sh/webfleet/pkg/resilience"
	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/ssl"
	"github.com/webfleet-sh/webfleet/pkg/systemd"
)

// lockWait bounds how long an operation waits for the registry lock held
// by another webfleet process.
const lockWait = 10 * time.Second

// Manager wires the subsystem managers together and owns the registry.
type Manager struct {
	cfg      *config.Config
	run      runner.Runner
	store    *registry.Store
	git      *git.Client
	nginx    *nginx.Manager
	systemd  *systemd.Manager
	ssl      *ssl.Manager
	dns      *ssl.DNSChecker
	backups  *backup.Manager
	audit    audit.Logger
	progress progress.Reporter
	log      zerolog.Logger
	probe    func(ctx context.Context, port int) error
}

// Option adjusts a Manager at construction time.
type Option func(*Manager)

// WithAudit sets the activity logger.
func WithAudit(l audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// WithProgress sets the stage reporter.
func WithProgress(r progress.Reporter) Option {
	return func(m *Manager) { m.progress = r }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithProbe replaces the connectivity probe.
func WithProbe(probe func(ctx context.Context, port int) error) Option {
	return func(m *Manager) { m.probe = probe }
}

// New builds a Manager over the given configuration and command runner.
func New(cfg *config.Config, run runner.Runner, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		run:      run,
		store:    registry.NewStore(cfg.Paths.RegistryFile, cfg.Paths.BackupDir),
		git:      git.NewClient(run),
		nginx:    nginx.NewManager(run, cfg.Paths),
		systemd:  systemd.NewManager(run, cfg.Paths.SystemdDir),
		ssl:      ssl.NewManager(run, cfg.CertEmail),
		dns:      ssl.NewDNSChecker(),
		backups:  backup.NewManager(run, cfg.Paths.BackupDir, registry.DefaultGlobal().MaxBackupsPerApp),
		audit:    audit.NewNoOpLogger(),
		progress: &progress.Discard{},
		log:      zerolog.Nop(),
	}
	m.probe = m.httpProbe
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the underlying store for read-only commands.
func (m *Manager) Registry() *registry.Store {
	return m.store
}

// httpProbe checks that something answers HTTP on localhost:port. Any
// response counts; apps legitimately serve 404 on / before content exists.
func (m *Manager) httpProbe(ctx context.Context, port int) error {
	client := &http.Client{Timeout: 5 * time.Second}

	return resilience.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("http://localhost:%d/", port), nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("probe port %d: %w", port, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe port %d: status %d", port, resp.StatusCode)
		}
		return nil
	},
		resilience.WithInitialDelay(2*time.Second),
		resilience.WithMaxDelay(5*time.Second),
		resilience.WithMaxElapsed(20*time.Second),
	)
}

func (m *Manager) logActivity(typ audit.ActivityType, domain, appType string, start time.Time, opErr error) {
	activity := &audit.Activity{
		Type:     typ,
		Domain:   domain,
		AppType:  appType,
		Duration: time.Since(start),
	}
	if opErr != nil {
		activity.Error = opErr.Error()
	}
	if err := m.audit.Log(activity); err != nil {
		m.log.Warn().Err(err).Msg("audit log write failed")
	}
}
