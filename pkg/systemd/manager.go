// Package systemd creates and controls the per-application service units.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/resilience"
	"github.com/webfleet-sh/webfleet/pkg/runner"
)

// ErrServiceNotReady is returned when a started service never reaches an
// active state or its journal shows startup errors.
var ErrServiceNotReady = errors.New("service did not become ready")

// Manager writes unit files and drives systemctl/journalctl.
type Manager struct {
	run        runner.Runner
	systemdDir string
	matcher    ReadinessMatcher
}

// NewManager creates a systemd manager with the default phrase matcher.
func NewManager(run runner.Runner, systemdDir string) *Manager {
	return &Manager{run: run, systemdDir: systemdDir, matcher: NewPhraseMatcher()}
}

// SetMatcher replaces the readiness matcher.
func (m *Manager) SetMatcher(matcher ReadinessMatcher) {
	m.matcher = matcher
}

// CreateUnit renders and installs the unit file, then reloads systemd.
func (m *Manager) CreateUnit(ctx context.Context, u Unit) error {
	content, err := RenderUnit(u)
	if err != nil {
		return err
	}

	path := filepath.Join(m.systemdDir, UnitName(u.Domain))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit file %s: %w", path, err)
	}
	if _, err := m.run.RunSudo(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

// RemoveUnit stops, disables and deletes the unit for domain. Stop and
// disable failures are ignored; the unit may already be gone.
func (m *Manager) RemoveUnit(ctx context.Context, domain string) error {
	unit := UnitName(domain)
	m.run.RunSudo(ctx, "systemctl", "stop", unit)
	m.run.RunSudo(ctx, "systemctl", "disable", unit)

	path := filepath.Join(m.systemdDir, unit)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file %s: %w", path, err)
	}
	if _, err := m.run.RunSudo(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

// UnitExists reports whether the unit file for domain is installed.
func (m *Manager) UnitExists(domain string) bool {
	_, err := os.Stat(filepath.Join(m.systemdDir, UnitName(domain)))
	return err == nil
}

// Start enables and starts the unit.
func (m *Manager) Start(ctx context.Context, domain string) error {
	unit := UnitName(domain)
	if _, err := m.run.RunSudo(ctx, "systemctl", "enable", unit); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	if _, err := m.run.RunSudo(ctx, "systemctl", "start", unit); err != nil {
		return fmt.Errorf("start %s: %w", unit, err)
	}
	return nil
}

// Stop stops the unit.
func (m *Manager) Stop(ctx context.Context, domain string) error {
	if _, err := m.run.RunSudo(ctx, "systemctl", "stop", UnitName(domain)); err != nil {
		return fmt.Errorf("stop %s: %w", UnitName(domain), err)
	}
	return nil
}

// Restart restarts the unit.
func (m *Manager) Restart(ctx context.Context, domain string) error {
	if _, err := m.run.RunSudo(ctx, "systemctl", "restart", UnitName(domain)); err != nil {
		return fmt.Errorf("restart %s: %w", UnitName(domain), err)
	}
	return nil
}

// IsActive reports whether the unit is in the active state.
func (m *Manager) IsActive(ctx context.Context, domain string) bool {
	res, err := m.run.RunSudo(ctx, "systemctl", "is-active", UnitName(domain))
	return err == nil && strings.TrimSpace(res.Stdout) == "active"
}

// Status returns the raw is-active output ("active", "failed", ...).
func (m *Manager) Status(ctx context.Context, domain string) string {
	res, _ := m.run.RunSudo(ctx, "systemctl", "is-active", UnitName(domain))
	status := strings.TrimSpace(res.Combined())
	if status == "" {
		return "unknown"
	}
	return status
}

// Logs returns the last n journal lines for the unit.
func (m *Manager) Logs(ctx context.Context, domain string, n int) (string, error) {
	res, err := m.run.RunSudo(ctx, "journalctl", "-u", UnitName(domain),
		"-n", strconv.Itoa(n), "--no-pager")
	if err != nil {
		return "", fmt.Errorf("journalctl for %s: %w", domain, err)
	}
	return res.Stdout, nil
}

// Follow streams the unit's journal to out, starting with the last n
// lines, until ctx is cancelled.
func (m *Manager) Follow(ctx context.Context, out io.Writer, domain string, n int) error {
	err := m.run.RunSudoStream(ctx, out, "journalctl", "-u", UnitName(domain),
		"-n", strconv.Itoa(n), "-f", "--no-pager")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("journalctl for %s: %w", domain, err)
	}
	return nil
}

// recentLogs returns journal output since the given systemd time spec.
func (m *Manager) recentLogs(ctx context.Context, domain, since string) string {
	res, _ := m.run.RunSudo(ctx, "journalctl", "-u", UnitName(domain),
		"--since", since, "--no-pager")
	return res.Stdout
}

// StartAndVerify starts the unit, waits for it to report active, then
// classifies its recent journal output. Returns the readiness verdict;
// ErrServiceNotReady wraps the failure cases.
func (m *Manager) StartAndVerify(ctx context.Context, domain string) (Readiness, error) {
	if err := m.Start(ctx, domain); err != nil {
		return ReadinessFailed, err
	}

	// Services sleep 5s in ExecStartPre, so poll rather than check once.
	err := resilience.RetryWithBackoff(ctx, func() error {
		if !m.IsActive(ctx, domain) {
			return fmt.Errorf("unit %s not active yet", UnitName(domain))
		}
		return nil
	},
		resilience.WithInitialDelay(2*time.Second),
		resilience.WithMaxDelay(5*time.Second),
		resilience.WithMaxElapsed(30*time.Second),
	)
	if err != nil {
		logs, _ := m.Logs(ctx, domain, 10)
		return ReadinessFailed, fmt.Errorf("%w: %s never reached active state: %s",
			ErrServiceNotReady, UnitName(domain), tail(logs, 500))
	}

	journal := m.recentLogs(ctx, domain, "1 minute ago")
	verdict := m.matcher.Classify(journal)
	if verdict == ReadinessFailed {
		return verdict, fmt.Errorf("%w: startup errors in journal: %s",
			ErrServiceNotReady, tail(journal, 500))
	}
	return verdict, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
