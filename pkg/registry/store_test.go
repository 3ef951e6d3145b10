package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "backups"))
}

func sampleApp(domain string, port int) *App {
	return &App{
		Domain:  domain,
		Port:    port,
		AppType: "nodejs",
		Source:  "https://github.com/acme/app.git",
		Branch:  "main",
		Created: Now(),
	}
}

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	s := testStore(t)
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Apps)
	assert.Equal(t, Version, doc.Version)
	assert.Equal(t, DefaultGlobal(), doc.Global)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	doc := NewDocument()
	require.NoError(t, doc.Add(sampleApp("example.com", 3000)))
	require.NoError(t, s.Save(doc))

	info, err := os.Stat(s.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := s.Load()
	require.NoError(t, err)
	app, err := loaded.Get("example.com")
	require.NoError(t, err)
	assert.Equal(t, 3000, app.Port)
	assert.Equal(t, "nodejs", app.AppType)
}

func TestLoadUnparsableFileSelfHeals(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path, []byte(`{not json at all`), 0o600))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Apps)
	assert.Equal(t, Version, doc.Version)

	// the broken file was snapshotted before being abandoned
	matches, err := filepath.Glob(filepath.Join(s.BackupDir, "config-*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, `{not json at all`, string(data))
}

func TestSaveSnapshotsPreviousFile(t *testing.T) {
	s := testStore(t)
	doc := NewDocument()
	require.NoError(t, s.Save(doc))
	require.NoError(t, s.Save(doc))

	matches, err := filepath.Glob(filepath.Join(s.BackupDir, "config-*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestHealDropsInvalidRecords(t *testing.T) {
	s := testStore(t)
	raw := `{
		"version": "3.0",
		"apps": {
			"good.com": {"domain": "good.com", "port": 3000, "app_type": "nodejs",
				"source": "https://github.com/a/b.git", "branch": "main",
				"ssl": false, "created": "2024-01-01T00:00:00"},
			"noport.com": {"domain": "noport.com", "app_type": "static",
				"source": "x", "branch": "main", "created": "2024-01-01T00:00:00"}
		}
	}`
	require.NoError(t, os.WriteFile(s.Path, []byte(raw), 0o600))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Apps, 1)
	_, err = doc.Get("noport.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHealMigratesLegacyFields(t *testing.T) {
	raw := `{
		"apps": {
			"old.com": {"domain": "old.com", "port": 4000, "type": "fastapi",
				"source": "x", "branch": "main", "ssl": true,
				"created": "2023-06-01T12:00:00"}
		}
	}`
	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	dropped := Heal(doc)
	assert.Empty(t, dropped)

	app := doc.Apps["old.com"]
	assert.Equal(t, "fastapi", app.AppType)
	assert.Empty(t, app.LegacyType)
	assert.Equal(t, "2023-06-01T12:00:00", app.LastUpdated)
	assert.Equal(t, "unknown", app.Status)
	assert.NotNil(t, app.EnvVars)
	assert.Equal(t, DefaultGlobal(), doc.Global)
}

func TestAddRejectsDuplicateDomainAndPort(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Add(sampleApp("a.com", 3000)))

	err := doc.Add(sampleApp("a.com", 3001))
	assert.ErrorIs(t, err, ErrExists)

	err = doc.Add(sampleApp("b.com", 3000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)
	assert.Contains(t, err.Error(), "a.com")
}

func TestListSortedByDomain(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Add(sampleApp("zeta.com", 3001)))
	require.NoError(t, doc.Add(sampleApp("alpha.com", 3000)))

	apps := doc.List()
	require.Len(t, apps, 2)
	assert.Equal(t, "alpha.com", apps[0].Domain)
	assert.Equal(t, "zeta.com", apps[1].Domain)
}

func TestRemove(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, doc.Add(sampleApp("a.com", 3000)))
	require.NoError(t, doc.Remove("a.com"))
	assert.ErrorIs(t, doc.Remove("a.com"), ErrNotFound)
}

func TestExportImport(t *testing.T) {
	s := testStore(t)
	doc := NewDocument()
	require.NoError(t, doc.Add(sampleApp("a.com", 3000)))

	exportPath := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.Export(doc, exportPath))

	imported, dropped, err := s.Import(exportPath)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	_, err = imported.Get("a.com")
	assert.NoError(t, err)
	assert.Equal(t, DefaultGlobal(), imported.Global)
}

func TestRepairUnparsableFile(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path, []byte("{not json"), 0o600))

	report, err := s.Repair()
	require.NoError(t, err)
	assert.True(t, report.Recreated)
	assert.Zero(t, report.Kept)

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Apps)
}

func TestRepairDropsInvalidKeepsValid(t *testing.T) {
	s := testStore(t)
	raw := `{
		"apps": {
			"good.com": {"domain": "good.com", "port": 3000, "app_type": "nodejs",
				"source": "x", "branch": "main", "ssl": false,
				"created": "2024-01-01T00:00:00"},
			"bad.com": {"domain": "bad.com"}
		}
	}`
	require.NoError(t, os.WriteFile(s.Path, []byte(raw), 0o600))

	report, err := s.Repair()
	require.NoError(t, err)
	assert.False(t, report.Recreated)
	assert.Equal(t, []string{"bad.com"}, report.Dropped)
	assert.Equal(t, 1, report.Kept)
}

func TestLockBlocksSecondHolder(t *testing.T) {
	s := testStore(t)
	lock, err := s.AcquireLock(0)
	require.NoError(t, err)

	_, err = s.AcquireLock(0)
	assert.Error(t, err)

	require.NoError(t, lock.Release())
	lock2, err := s.AcquireLock(0)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestWithLockRunsFn(t *testing.T) {
	s := testStore(t)
	ran := false
	require.NoError(t, s.WithLock(0, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, s.WithLock(0, func() error { return sentinel }), sentinel)
}
