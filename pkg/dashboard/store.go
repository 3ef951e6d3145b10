// Package dashboard serves the web UI: a chi HTTP API over a SQLite mirror
// of the registry, with websocket push for monitoring data.
//
// The JSON registry stays authoritative; the SQLite store is a read-mostly
// mirror refreshed from it, plus dashboard-only data (users, usage samples,
// log lines) that never flows back.
package dashboard

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUserNotFound is returned when a username has no row.
var ErrUserNotFound = errors.New("user not found")

// usageRetention bounds how far back usage samples are kept.
const usageRetention = 7 * 24 * time.Hour

// User is a dashboard account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Application is the mirrored view of one registry record.
type Application struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	Port      int       `json:"port"`
	AppType   string    `json:"app_type"`
	Source    string    `json:"source"`
	Branch    string    `json:"branch"`
	SSL       bool      `json:"ssl"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageSample is one point of system resource data.
type UsageSample struct {
	CPULoad     float64   `json:"cpu_load"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	SampledAt   time.Time `json:"sampled_at"`
}

// LogLine is one dashboard-visible log entry.
type LogLine struct {
	Level    string    `json:"level"`
	Source   string    `json:"source"`
	Message  string    `json:"message"`
	LoggedAt time.Time `json:"logged_at"`
}

// Store wraps the dashboard SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the dashboard database and applies
// the schema.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dashboard data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open dashboard db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain TEXT NOT NULL UNIQUE,
			port INTEGER NOT NULL,
			app_type TEXT NOT NULL,
			source TEXT NOT NULL,
			branch TEXT NOT NULL,
			ssl INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'unknown',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS system_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cpu_load REAL NOT NULL,
			memory_used INTEGER NOT NULL,
			memory_total INTEGER NOT NULL,
			disk_used INTEGER NOT NULL,
			disk_total INTEGER NOT NULL,
			sampled_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS system_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			logged_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_sampled ON system_usage(sampled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_logged ON system_logs(logged_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply dashboard schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(username, passwordHash string) error {
	_, err := s.db.Exec(
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		return fmt.Errorf("create user %s: %w", username, err)
	}
	return nil
}

// GetUser looks an account up by username.
func (s *Store) GetUser(username string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return &u, nil
}

// UserCount returns how many accounts exist.
func (s *Store) UserCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	res, err := s.db.Exec(
		`UPDATE users SET password_hash = ? WHERE username = ?`, passwordHash, username)
	if err != nil {
		return fmt.Errorf("update password for %s: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpsertApplication mirrors one registry record into the store.
func (s *Store) UpsertApplication(app Application) error {
	_, err := s.db.Exec(`
		INSERT INTO applications (domain, port, app_type, source, branch, ssl, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(domain) DO UPDATE SET
			port = excluded.port,
			app_type = excluded.app_type,
			source = excluded.source,
			branch = excluded.branch,
			ssl = excluded.ssl,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		app.Domain, app.Port, app.AppType, app.Source, app.Branch, app.SSL, app.Status)
	if err != nil {
		return fmt.Errorf("upsert application %s: %w", app.Domain, err)
	}
	return nil
}

// ListApplications returns the mirrored records ordered by domain.
func (s *Store) ListApplications() ([]Application, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, port, app_type, source, branch, ssl, status, updated_at
		FROM applications ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.Domain, &a.Port, &a.AppType, &a.Source,
			&a.Branch, &a.SSL, &a.Status, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// DeleteApplication drops the mirror row for a removed app.
func (s *Store) DeleteApplication(domain string) error {
	if _, err := s.db.Exec(`DELETE FROM applications WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("delete application %s: %w", domain, err)
	}
	return nil
}

// PruneApplications removes mirror rows whose domain is not in keep.
func (s *Store) PruneApplications(keep []string) error {
	apps, err := s.ListApplications()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(keep))
	for _, domain := range keep {
		known[domain] = true
	}
	for _, app := range apps {
		if !known[app.Domain] {
			if err := s.DeleteApplication(app.Domain); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsertUsage records one resource sample and drops expired ones.
func (s *Store) InsertUsage(sample UsageSample) error {
	_, err := s.db.Exec(`
		INSERT INTO system_usage (cpu_load, memory_used, memory_total, disk_used, disk_total, sampled_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sample.CPULoad, sample.MemoryUsed, sample.MemoryTotal,
		sample.DiskUsed, sample.DiskTotal, sample.SampledAt.UTC())
	if err != nil {
		return fmt.Errorf("insert usage sample: %w", err)
	}
	_, err = s.db.Exec(`DELETE FROM system_usage WHERE sampled_at < ?`,
		time.Now().Add(-usageRetention).UTC())
	return err
}

// RecentUsage returns the latest n samples, newest first.
func (s *Store) RecentUsage(n int) ([]UsageSample, error) {
	rows, err := s.db.Query(`
		SELECT cpu_load, memory_used, memory_total, disk_used, disk_total, sampled_at
		FROM system_usage ORDER BY sampled_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query usage samples: %w", err)
	}
	defer rows.Close()

	var samples []UsageSample
	for rows.Next() {
		var u UsageSample
		if err := rows.Scan(&u.CPULoad, &u.MemoryUsed, &u.MemoryTotal,
			&u.DiskUsed, &u.DiskTotal, &u.SampledAt); err != nil {
			return nil, fmt.Errorf("scan usage sample: %w", err)
		}
		samples = append(samples, u)
	}
	return samples, rows.Err()
}

// InsertLog records one log line.
func (s *Store) InsertLog(line LogLine) error {
	if line.LoggedAt.IsZero() {
		line.LoggedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO system_logs (level, source, message, logged_at) VALUES (?, ?, ?, ?)`,
		line.Level, line.Source, line.Message, line.LoggedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// RecentLogs returns the latest n log lines, newest first.
func (s *Store) RecentLogs(n int) ([]LogLine, error) {
	rows, err := s.db.Query(`
		SELECT level, source, message, logged_at
		FROM system_logs ORDER BY logged_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.Level, &l.Source, &l.Message, &l.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetConfig returns a config value, "" when unset.
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a config value.
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}
