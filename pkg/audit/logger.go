// Package audit records an append-only activity trail of every mutating
// operation: deployments, removals, updates, SSL changes. One JSONL file
// per day under the tool log directory.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityType classifies an audit entry.
type ActivityType string

const (
	ActivityDeployStarted   ActivityType = "deploy.started"
	ActivityDeployCompleted ActivityType = "deploy.completed"
	ActivityDeployFailed    ActivityType = "deploy.failed"
	ActivityAppRemoved      ActivityType = "app.removed"
	ActivityAppUpdated      ActivityType = "app.updated"
	ActivityAppRestarted    ActivityType = "app.restarted"
	ActivityAppRepaired     ActivityType = "app.repaired"
	ActivitySSLProvisioned  ActivityType = "ssl.provisioned"
	ActivitySSLRemoved      ActivityType = "ssl.removed"
	ActivityConfigImported  ActivityType = "config.imported"
	ActivityConfigRepaired  ActivityType = "config.repaired"
)

// Activity is one logged operation.
type Activity struct {
	ID        string                 `json:"id"`
	Type      ActivityType           `json:"type"`
	Domain    string                 `json:"domain,omitempty"`
	AppType   string                 `json:"app_type,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Logger records activities.
type Logger interface {
	Log(activity *Activity) error
	Close() error
}

// FileLogger appends activities to daily JSONL files.
type FileLogger struct {
	basePath string
	mu       sync.Mutex
	enabled  bool
}

// NewFileLogger creates a logger writing under basePath.
func NewFileLogger(basePath string) (*FileLogger, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create audit log dir %s: %w", basePath, err)
	}
	return &FileLogger{basePath: basePath, enabled: true}, nil
}

// Log writes one activity. Fills ID and Timestamp if unset.
func (l *FileLogger) Log(activity *Activity) error {
	if !l.enabled {
		return nil
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}
	if activity.ID == "" {
		activity.ID = GenerateID()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := filepath.Join(l.basePath, activity.Timestamp.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(activity); err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return nil
}

// Close disables further writes.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	return nil
}

// NoOpLogger discards everything. Used when the audit dir is unwritable.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger          { return &NoOpLogger{} }
func (NoOpLogger) Log(*Activity) error    { return nil }
func (NoOpLogger) Close() error           { return nil }

// GenerateID returns a unique-enough activity id.
func GenerateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
