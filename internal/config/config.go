// Package config loads the modbackup YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Modules   ModulesConfig   `yaml:"modules"`
	Backup    BackupConfig    `yaml:"backup"`
	Restore   RestoreConfig   `yaml:"restore"`
	Execution ExecutionConfig `yaml:"execution"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Security  SecurityConfig  `yaml:"security"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Log       LogConfig       `yaml:"log"`
}

// ModulesConfig locates module descriptors and the fixed profile root.
type ModulesConfig struct {
	Dir string `yaml:"dir"`
	// HomeDir replaces "~" in backup paths. Empty means the current user's home.
	HomeDir    string `yaml:"home_dir"`
	ConfigRoot string `yaml:"config_root"`
}

type BackupConfig struct {
	StagingDir   string `yaml:"staging_dir"`
	Destination  string `yaml:"destination"`
	Format       string `yaml:"format"`
	Workers      int    `yaml:"workers"`
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
}

type RestoreConfig struct {
	TempDir string `yaml:"temp_dir"`
	// Conflict is one of prompt, overwrite or skip.
	Conflict string `yaml:"conflict"`
}

type ExecutionConfig struct {
	Shell         string `yaml:"shell"`
	Timeout       int    `yaml:"timeout"`
	MaxOutputSize int    `yaml:"max_output_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	PathPrefix string `yaml:"path_prefix"`
}

type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type WatcherConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   *bool  `yaml:"compress"`
}

// ScriptTimeout returns the external command timeout, zero meaning unbounded.
func (c *ExecutionConfig) ScriptTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Timeout) * time.Second
}

// IsEnabled returns whether the modules watcher is enabled (default: true).
func (c *WatcherConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

func (c *WatcherConfig) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d <= 0 {
		return 300 * time.Millisecond
	}
	return d
}

// ShouldCompress reports whether rotated log files are gzipped (default: true).
func (c *LogConfig) ShouldCompress() bool {
	if c.Compress == nil {
		return true
	}
	return *c.Compress
}

func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Modules.Dir == "" {
		cfg.Modules.Dir = "./modules"
	}
	if cfg.Modules.ConfigRoot == "" {
		cfg.Modules.ConfigRoot = "~/.config"
	}
	if cfg.Backup.Destination == "" {
		cfg.Backup.Destination = "."
	}
	if cfg.Backup.Format == "" {
		cfg.Backup.Format = "zip"
	}
	if cfg.Backup.Workers <= 0 {
		cfg.Backup.Workers = 1
	}
	if cfg.Restore.Conflict == "" {
		cfg.Restore.Conflict = "prompt"
	}
	if cfg.Execution.Shell == "" {
		cfg.Execution.Shell = "bash"
	}
	if cfg.Execution.MaxOutputSize == 0 {
		cfg.Execution.MaxOutputSize = 1048576
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/modbackup.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8750
	}
	if cfg.Auth.Username == "" {
		cfg.Auth.Username = "admin"
	}
	if cfg.Watcher.Debounce == "" {
		cfg.Watcher.Debounce = "300ms"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
}
