package dashboard

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "dashboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUserLifecycle(t *testing.T) {
	store := testStore(t)

	n, err := store.UserCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.CreateUser("admin", "hash-1"))
	assert.Error(t, store.CreateUser("admin", "hash-2"), "usernames are unique")

	user, err := store.GetUser("admin")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", user.PasswordHash)

	require.NoError(t, store.UpdatePassword("admin", "hash-3"))
	user, err = store.GetUser("admin")
	require.NoError(t, err)
	assert.Equal(t, "hash-3", user.PasswordHash)

	_, err = store.GetUser("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, store.UpdatePassword("nobody", "x"), ErrUserNotFound)
}

func TestApplicationMirror(t *testing.T) {
	store := testStore(t)

	app := Application{
		Domain: "example.com", Port: 3000, AppType: "nextjs",
		Source: "https://github.com/acme/app.git", Branch: "main",
		SSL: true, Status: "active",
	}
	require.NoError(t, store.UpsertApplication(app))

	app.Port = 3001
	app.Status = "failed"
	require.NoError(t, store.UpsertApplication(app))

	apps, err := store.ListApplications()
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, 3001, apps[0].Port)
	assert.Equal(t, "failed", apps[0].Status)
	assert.True(t, apps[0].SSL)

	require.NoError(t, store.UpsertApplication(Application{
		Domain: "b.example.com", Port: 3002, AppType: "static",
		Source: "/srv/b", Branch: "main", Status: "active",
	}))

	require.NoError(t, store.PruneApplications([]string{"b.example.com"}))
	apps, err = store.ListApplications()
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "b.example.com", apps[0].Domain)
}

func TestUsageSamples(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertUsage(UsageSample{
			CPULoad:     float64(i),
			MemoryUsed:  uint64(i) * 1024,
			MemoryTotal: 8192,
			DiskUsed:    100,
			DiskTotal:   1000,
			SampledAt:   time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	samples, err := store.RecentUsage(2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, float64(2), samples[0].CPULoad, "newest first")
}

func TestUsageRetention(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.InsertUsage(UsageSample{
		CPULoad: 1, MemoryTotal: 1, SampledAt: time.Now().Add(-8 * 24 * time.Hour),
	}))
	require.NoError(t, store.InsertUsage(UsageSample{
		CPULoad: 2, MemoryTotal: 1, SampledAt: time.Now(),
	}))

	samples, err := store.RecentUsage(10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, float64(2), samples[0].CPULoad)
}

func TestLogsAndConfig(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.InsertLog(LogLine{Level: "info", Source: "deploy", Message: "first"}))
	require.NoError(t, store.InsertLog(LogLine{Level: "warning", Source: "monitor", Message: "second"}))

	lines, err := store.RecentLogs(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "second", lines[0].Message)

	value, err := store.GetConfig("theme")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetConfig("theme", "dark"))
	require.NoError(t, store.SetConfig("theme", "light"))
	value, err = store.GetConfig("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)
}
