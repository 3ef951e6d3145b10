// Package config loads the tool configuration: filesystem layout, nginx
// locations and operational defaults. Configuration comes from
// /etc/webfleet/webfleet.yaml, overridable per-key via WEBFLEET_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is consulted when --config is not given.
const DefaultConfigFile = "/etc/webfleet/webfleet.yaml"

// Paths describes where webfleet keeps everything it manages.
type Paths struct {
	AppsDir        string `yaml:"apps_dir" mapstructure:"apps_dir"`
	NginxAvailable string `yaml:"nginx_available" mapstructure:"nginx_available"`
	NginxEnabled   string `yaml:"nginx_enabled" mapstructure:"nginx_enabled"`
	NginxConf      string `yaml:"nginx_conf" mapstructure:"nginx_conf"`
	SystemdDir     string `yaml:"systemd_dir" mapstructure:"systemd_dir"`
	LogDir         string `yaml:"log_dir" mapstructure:"log_dir"`
	RegistryFile   string `yaml:"registry_file" mapstructure:"registry_file"`
	BackupDir      string `yaml:"backup_dir" mapstructure:"backup_dir"`
	MaintenanceDir string `yaml:"maintenance_dir" mapstructure:"maintenance_dir"`
}

// Config is the full tool configuration.
type Config struct {
	Paths     Paths  `yaml:"paths" mapstructure:"paths"`
	CertEmail string `yaml:"cert_email" mapstructure:"cert_email"`
	Verbose   bool   `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultPaths mirrors the standard Debian/Ubuntu layout the tool targets.
func DefaultPaths() Paths {
	return Paths{
		AppsDir:        "/var/www/apps",
		NginxAvailable: "/etc/nginx/sites-available",
		NginxEnabled:   "/etc/nginx/sites-enabled",
		NginxConf:      "/etc/nginx/nginx.conf",
		SystemdDir:     "/etc/systemd/system",
		LogDir:         "/var/log/apps",
		RegistryFile:   "/etc/webfleet/registry.json",
		BackupDir:      "/var/backups/webfleet",
		MaintenanceDir: "/var/www/maintenance",
	}
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{Paths: DefaultPaths()}
}

// Load reads configuration via viper. A missing file is not an error; the
// defaults stand and env overrides still apply.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	setPathDefaults(v, cfg.Paths)
	v.SetDefault("cert_email", "")
	v.SetDefault("verbose", false)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setPathDefaults(v *viper.Viper, p Paths) {
	v.SetDefault("paths.apps_dir", p.AppsDir)
	v.SetDefault("paths.nginx_available", p.NginxAvailable)
	v.SetDefault("paths.nginx_enabled", p.NginxEnabled)
	v.SetDefault("paths.nginx_conf", p.NginxConf)
	v.SetDefault("paths.systemd_dir", p.SystemdDir)
	v.SetDefault("paths.log_dir", p.LogDir)
	v.SetDefault("paths.registry_file", p.RegistryFile)
	v.SetDefault("paths.backup_dir", p.BackupDir)
	v.SetDefault("paths.maintenance_dir", p.MaintenanceDir)
}

// Write saves the configuration as YAML, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// AppDir returns the deployment directory for a domain.
func (p Paths) AppDir(domain string) string {
	return filepath.Join(p.AppsDir, domain)
}

// AppLogDir returns the log directory for a domain.
func (p Paths) AppLogDir(domain string) string {
	return filepath.Join(p.LogDir, domain)
}
