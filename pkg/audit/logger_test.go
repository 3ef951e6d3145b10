package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesDailyJSONL(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.Log(&Activity{
		Type:      ActivityDeployCompleted,
		Domain:    "example.com",
		AppType:   "nextjs",
		Timestamp: ts,
	}))
	require.NoError(t, l.Log(&Activity{
		Type:      ActivityDeployFailed,
		Domain:    "other.com",
		Error:     "build failed",
		Timestamp: ts.Add(time.Hour),
	}))

	f, err := os.Open(filepath.Join(dir, "2026-03-14.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var entries []Activity
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var a Activity
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &a))
		entries = append(entries, a)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, ActivityDeployCompleted, entries[0].Type)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "build failed", entries[1].Error)
}

func TestFileLoggerFillsTimestamp(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)
	a := &Activity{Type: ActivityAppRemoved, Domain: "x.com"}
	require.NoError(t, l.Log(a))
	assert.False(t, a.Timestamp.IsZero())
}

func TestClosedLoggerDropsEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Log(&Activity{Type: ActivityAppRemoved}))

	matches, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	assert.Empty(t, matches)
}
