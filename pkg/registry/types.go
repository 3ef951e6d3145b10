// Package registry persists the set of managed applications as a single
// JSON document. The file is the source of truth for everything the tool
// manages; nginx vhosts and systemd units are derived from it.
package registry

import (
	"fmt"
	"time"
)

// Version is written to every saved registry document. Documents with an
// older version are migrated in place on load.
const Version = "4.0"

// Timestamp layout used throughout the registry file.
const timeLayout = "2006-01-02T15:04:05"

// App is one managed application, keyed by its domain.
type App struct {
	Domain       string            `json:"domain"`
	Port         int               `json:"port"`
	AppType      string            `json:"app_type"`
	Source       string            `json:"source"`
	Branch       string            `json:"branch"`
	SSL          bool              `json:"ssl"`
	Created      string            `json:"created"`
	LastUpdated  string            `json:"last_updated,omitempty"`
	Status       string            `json:"status,omitempty"`
	BuildCommand string            `json:"build_command,omitempty"`
	StartCommand string            `json:"start_command,omitempty"`
	EnvVars      map[string]string `json:"env_vars,omitempty"`

	// LegacyType carries the pre-4.0 "type" key so old files migrate
	// without losing the value. Never written back.
	LegacyType string `json:"type,omitempty"`
}

// Valid reports whether the record carries every required field. Records
// failing this check are dropped during load so one corrupt entry cannot
// take the whole registry down.
func (a *App) Valid() bool {
	return a.Domain != "" &&
		a.Port != 0 &&
		(a.AppType != "" || a.LegacyType != "") &&
		a.Source != "" &&
		a.Branch != "" &&
		a.Created != ""
}

// migrate fills fields that older registry versions did not record.
func (a *App) migrate() {
	if a.AppType == "" && a.LegacyType != "" {
		a.AppType = a.LegacyType
	}
	a.LegacyType = ""
	if a.LastUpdated == "" {
		a.LastUpdated = a.Created
	}
	if a.Status == "" {
		a.Status = "unknown"
	}
	if a.EnvVars == nil {
		a.EnvVars = make(map[string]string)
	}
}

// ServiceName returns the systemd unit name for the app.
func (a *App) ServiceName() string {
	return fmt.Sprintf("app-%s.service", a.Domain)
}

// Global holds tool-wide defaults stored alongside the app records.
type Global struct {
	DefaultSSL             bool   `json:"default_ssl"`
	AutoBackup             bool   `json:"auto_backup"`
	BackupRetentionDays    int    `json:"backup_retention_days"`
	MaxBackupsPerApp       int    `json:"max_backups_per_app"`
	NginxWorkerProcesses   string `json:"nginx_worker_processes"`
	NginxWorkerConnections int    `json:"nginx_worker_connections"`
	LogLevel               string `json:"log_level"`
}

// DefaultGlobal returns the defaults applied to fresh registries and
// merged under imported documents.
func DefaultGlobal() Global {
	return Global{
		DefaultSSL:             true,
		AutoBackup:             true,
		BackupRetentionDays:    30,
		MaxBackupsPerApp:       5,
		NginxWorkerProcesses:   "auto",
		NginxWorkerConnections: 1024,
		LogLevel:               "info",
	}
}

// Document is the full registry file contents.
type Document struct {
	Version      string          `json:"version"`
	Apps         map[string]*App `json:"apps"`
	Global       Global          `json:"global"`
	CreatedAt    string          `json:"created_at"`
	LastModified string          `json:"last_modified"`
}

// NewDocument returns an empty registry with defaults applied.
func NewDocument() *Document {
	now := Now()
	return &Document{
		Version:      Version,
		Apps:         make(map[string]*App),
		Global:       DefaultGlobal(),
		CreatedAt:    now,
		LastModified: now,
	}
}

// Now returns the current time in the registry timestamp layout.
func Now() string {
	return time.Now().Format(timeLayout)
}
