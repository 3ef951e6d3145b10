// Package backup archives and restores application directories. Backups are
// plain tar.gz files named <domain>-<timestamp>.tar.gz, pruned to a per-app
// maximum.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/runner"
)

// Info describes one archived backup.
type Info struct {
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates, lists, restores and prunes per-app backups.
type Manager struct {
	run        runner.Runner
	backupDir  string
	maxPerApp  int
	timestamps func() time.Time
}

// NewManager creates a backup manager. maxPerApp bounds how many archives
// are kept per domain; older ones are pruned after each new backup.
func NewManager(run runner.Runner, backupDir string, maxPerApp int) *Manager {
	if maxPerApp < 1 {
		maxPerApp = 5
	}
	return &Manager{run: run, backupDir: backupDir, maxPerApp: maxPerApp, timestamps: time.Now}
}

// Backup archives appDir and returns the archive path. The app directory
// must exist; callers skip the call for fresh deploys.
func (m *Manager) Backup(ctx context.Context, domain, appDir string) (string, error) {
	if _, err := os.Stat(appDir); err != nil {
		return "", fmt.Errorf("app directory %s: %w", appDir, err)
	}
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := m.timestamps().Format("20060102-150405")
	archive := filepath.Join(m.backupDir, fmt.Sprintf("%s-%s.tar.gz", domain, stamp))

	// -C to the parent so the archive holds a single top-level directory.
	parent, base := filepath.Split(filepath.Clean(appDir))
	res, err := m.run.Run(ctx, "tar", "-czf", archive, "-C", filepath.Clean(parent), base)
	if err != nil {
		os.Remove(archive)
		return "", fmt.Errorf("archive %s: %w: %s", domain, err, strings.TrimSpace(res.Stderr))
	}

	if err := m.prune(domain); err != nil {
		return archive, fmt.Errorf("prune old backups for %s: %w", domain, err)
	}
	return archive, nil
}

// Restore unpacks the given archive over appDir, replacing its contents.
func (m *Manager) Restore(ctx context.Context, archive, appDir string) error {
	if _, err := os.Stat(archive); err != nil {
		return fmt.Errorf("backup archive %s: %w", archive, err)
	}
	if err := os.RemoveAll(appDir); err != nil {
		return fmt.Errorf("clear %s before restore: %w", appDir, err)
	}
	parent := filepath.Dir(filepath.Clean(appDir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	res, err := m.run.Run(ctx, "tar", "-xzf", archive, "-C", parent)
	if err != nil {
		return fmt.Errorf("unpack %s: %w: %s", archive, err, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Latest returns the newest archive path for domain, or "" if none exist.
func (m *Manager) Latest(domain string) (string, error) {
	backups, err := m.List(domain)
	if err != nil || len(backups) == 0 {
		return "", err
	}
	return backups[0].Path, nil
}

// List returns the backups for domain, newest first.
func (m *Manager) List(domain string) ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	prefix := domain + "-"
	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Domain:    domain,
			Path:      filepath.Join(m.backupDir, name),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Path > backups[j].Path
	})
	return backups, nil
}

// Delete removes every backup for domain.
func (m *Manager) Delete(domain string) error {
	backups, err := m.List(domain)
	if err != nil {
		return err
	}
	for _, b := range backups {
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("remove %s: %w", b.Path, err)
		}
	}
	return nil
}

func (m *Manager) prune(domain string) error {
	backups, err := m.List(domain)
	if err != nil {
		return err
	}
	for _, b := range backups[min(m.maxPerApp, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return err
		}
	}
	return nil
}
