package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Sentinel errors for callers that branch on registry state.
var (
	ErrNotFound  = errors.New("app not found")
	ErrExists    = errors.New("app already registered")
	ErrPortInUse = errors.New("port already in use")
)

// How many config-*.json snapshots to keep next to the registry.
const maxConfigBackups = 10

// Store reads and writes the registry file. Mutating operations should be
// wrapped in WithLock so concurrent invocations serialize on the file.
type Store struct {
	Path      string
	BackupDir string
}

// NewStore returns a store for the registry at path. Pre-save snapshots go
// to backupDir.
func NewStore(path, backupDir string) *Store {
	return &Store{Path: path, BackupDir: backupDir}
}

// Load reads the registry, migrating old documents and dropping records
// that fail validation. A missing file yields a fresh empty document; so
// does an unparsable one, after the broken file is snapshotted so nothing
// is lost. Registry corruption must never take the whole tool down.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("read registry %s: %w", s.Path, err)
	}

	doc, err := Decode(data)
	if err != nil {
		s.snapshot()
		return NewDocument(), nil
	}
	Heal(doc)
	return doc, nil
}

// Decode parses raw registry JSON without healing it.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Heal migrates the document in place: invalid records are dropped,
// missing per-app fields are backfilled, and zero-valued global settings
// get their defaults. Returns the domains of dropped records.
func Heal(doc *Document) []string {
	if doc.Apps == nil {
		doc.Apps = make(map[string]*App)
	}
	var dropped []string
	for domain, app := range doc.Apps {
		if app == nil || !app.Valid() {
			dropped = append(dropped, domain)
			delete(doc.Apps, domain)
			continue
		}
		if app.Domain == "" {
			app.Domain = domain
		}
		app.migrate()
	}
	sort.Strings(dropped)

	def := DefaultGlobal()
	if doc.Global.BackupRetentionDays == 0 {
		doc.Global.BackupRetentionDays = def.BackupRetentionDays
	}
	if doc.Global.MaxBackupsPerApp == 0 {
		doc.Global.MaxBackupsPerApp = def.MaxBackupsPerApp
	}
	if doc.Global.NginxWorkerProcesses == "" {
		doc.Global.NginxWorkerProcesses = def.NginxWorkerProcesses
	}
	if doc.Global.NginxWorkerConnections == 0 {
		doc.Global.NginxWorkerConnections = def.NginxWorkerConnections
	}
	if doc.Global.LogLevel == "" {
		doc.Global.LogLevel = def.LogLevel
	}
	if doc.Version == "" {
		doc.Version = Version
	}
	if doc.CreatedAt == "" {
		doc.CreatedAt = Now()
	}
	return dropped
}

// Save snapshots the current file, then writes the document atomically
// with 0600 permissions. The registry stores env vars, so it is never
// world-readable.
func (s *Store) Save(doc *Document) error {
	doc.Version = Version
	doc.LastModified = Now()

	if err := s.snapshot(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// snapshot copies the existing registry into the backup directory as
// config-<timestamp>.json and prunes old snapshots.
func (s *Store) snapshot() error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry for snapshot: %w", err)
	}
	if err := os.MkdirAll(s.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir %s: %w", s.BackupDir, err)
	}
	name := fmt.Sprintf("config-%s.json", time.Now().Format("20060102-150405"))
	if err := os.WriteFile(filepath.Join(s.BackupDir, name), data, 0o600); err != nil {
		return fmt.Errorf("write registry snapshot: %w", err)
	}
	s.pruneSnapshots()
	return nil
}

func (s *Store) pruneSnapshots() {
	matches, err := filepath.Glob(filepath.Join(s.BackupDir, "config-*.json"))
	if err != nil || len(matches) <= maxConfigBackups {
		return
	}
	sort.Strings(matches) // timestamped names sort chronologically
	for _, old := range matches[:len(matches)-maxConfigBackups] {
		os.Remove(old)
	}
}

// Get returns the record for domain.
func (d *Document) Get(domain string) (*App, error) {
	app, ok := d.Apps[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	return app, nil
}

// Add registers a new app. The domain must be free and the port unclaimed.
func (d *Document) Add(app *App) error {
	if _, ok := d.Apps[app.Domain]; ok {
		return fmt.Errorf("%w: %s", ErrExists, app.Domain)
	}
	if owner, taken := d.PortOwner(app.Port); taken {
		return fmt.Errorf("%w: port %d is used by %s", ErrPortInUse, app.Port, owner)
	}
	if app.Created == "" {
		app.Created = Now()
	}
	if app.LastUpdated == "" {
		app.LastUpdated = app.Created
	}
	if app.EnvVars == nil {
		app.EnvVars = make(map[string]string)
	}
	d.Apps[app.Domain] = app
	return nil
}

// Remove deletes the record for domain.
func (d *Document) Remove(domain string) error {
	if _, ok := d.Apps[domain]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	delete(d.Apps, domain)
	return nil
}

// List returns the registered apps sorted by domain.
func (d *Document) List() []*App {
	out := make([]*App, 0, len(d.Apps))
	for _, app := range d.Apps {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// PortOwner reports which domain, if any, has claimed port.
func (d *Document) PortOwner(port int) (string, bool) {
	for domain, app := range d.Apps {
		if app.Port == port {
			return domain, true
		}
	}
	return "", false
}

// Export writes the document to path as indented JSON, world-unreadable.
func (s *Store) Export(doc *Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry export: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write registry export: %w", err)
	}
	return nil
}

// Import reads a registry document from path, heals it, and returns it
// with defaults merged under any missing global settings. The caller
// decides whether to Save it.
func (s *Store) Import(path string) (*Document, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read import file %s: %w", path, err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse import file %s: %w", path, err)
	}
	dropped := Heal(doc)
	return doc, dropped, nil
}
