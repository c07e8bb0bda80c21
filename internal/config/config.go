// Package config loads zonesync settings from zonesync.toml, ZONESYNC_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// FileName is the config file name looked up in the working directory and
// the data directory.
const FileName = "zonesync.toml"

// EnvPrefix prefixes environment overrides, e.g. ZONESYNC_LOG_LEVEL.
const EnvPrefix = "ZONESYNC"

// Config is the full zonesync configuration.
type Config struct {
	// DataDir holds the database, the list directories and the log file.
	DataDir string `mapstructure:"data_dir"`
	// Database is the SQLite file, relative to DataDir unless absolute.
	Database string `mapstructure:"database"`
	// PageSize is how many zones or records a change page holds.
	PageSize int `mapstructure:"page_size"`

	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	JSON       bool   `mapstructure:"json" toml:"json"`
}

// DaemonConfig configures the sync daemon.
type DaemonConfig struct {
	Inbox        string        `mapstructure:"inbox"`
	Outbox       string        `mapstructure:"outbox"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
	Scopes       []string      `mapstructure:"scopes"`
}

// DashboardConfig configures the WebSocket dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Host    string `mapstructure:"host" toml:"host"`
	Port    int    `mapstructure:"port" toml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:  ".zonesync",
		Database: "zonesync.db",
		PageSize: 100,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Daemon: DaemonConfig{
			Inbox:        "inbox",
			Outbox:       "outbox",
			PollInterval: 30 * time.Second,
			Debounce:     200 * time.Millisecond,
			Scopes:       []string{"local", "shared"},
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// NewViper returns a viper instance with every key defaulted, environment
// overrides enabled and the config file search path set.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath(Default().DataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the values of Default under their config keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("database", d.Database)
	v.SetDefault("page_size", d.PageSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.json", d.Log.JSON)

	v.SetDefault("daemon.inbox", d.Daemon.Inbox)
	v.SetDefault("daemon.outbox", d.Daemon.Outbox)
	v.SetDefault("daemon.poll_interval", d.Daemon.PollInterval)
	v.SetDefault("daemon.debounce", d.Daemon.Debounce)
	v.SetDefault("daemon.scopes", d.Daemon.Scopes)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// Load reads the config file, if one is found, and decodes v into a
// validated Config. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be at least 1 (got %d)", c.PageSize)
	}
	if c.Daemon.PollInterval <= 0 {
		return fmt.Errorf("daemon.poll_interval must be positive")
	}
	if c.Daemon.Debounce <= 0 {
		return fmt.Errorf("daemon.debounce must be positive")
	}
	if c.InboxDir() == c.OutboxDir() {
		return fmt.Errorf("daemon.inbox and daemon.outbox must differ")
	}
	if _, err := c.Scopes(); err != nil {
		return err
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	return nil
}

// Scopes parses Daemon.Scopes.
func (c *Config) Scopes() ([]record.Scope, error) {
	if len(c.Daemon.Scopes) == 0 {
		return nil, fmt.Errorf("daemon.scopes must name at least one scope")
	}
	scopes := make([]record.Scope, 0, len(c.Daemon.Scopes))
	for _, s := range c.Daemon.Scopes {
		scope, err := record.ParseScope(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("daemon.scopes: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// DatabasePath returns the resolved database file path.
func (c *Config) DatabasePath() string { return c.resolve(c.Database) }

// InboxDir returns the resolved directory fetched lists are written to.
func (c *Config) InboxDir() string { return c.resolve(c.Daemon.Inbox) }

// OutboxDir returns the resolved directory watched for lists to push.
func (c *Config) OutboxDir() string { return c.resolve(c.Daemon.Outbox) }

// LogFile returns the resolved log file path, or "" when file logging is off.
func (c *Config) LogFile() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.DataDir, p)
}

// fileConfig is the TOML layout written by Write. Durations are written as
// strings so the file stays readable and viper can parse them back.
type fileConfig struct {
	DataDir   string          `toml:"data_dir"`
	Database  string          `toml:"database"`
	PageSize  int             `toml:"page_size"`
	Log       LogConfig       `toml:"log"`
	Daemon    fileDaemon      `toml:"daemon"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

type fileDaemon struct {
	Inbox        string   `toml:"inbox"`
	Outbox       string   `toml:"outbox"`
	PollInterval string   `toml:"poll_interval"`
	Debounce     string   `toml:"debounce"`
	Scopes       []string `toml:"scopes"`
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	fc := fileConfig{
		DataDir:  c.DataDir,
		Database: c.Database,
		PageSize: c.PageSize,
		Log:      c.Log,
		Daemon: fileDaemon{
			Inbox:        c.Daemon.Inbox,
			Outbox:       c.Daemon.Outbox,
			PollInterval: c.Daemon.PollInterval.String(),
			Debounce:     c.Daemon.Debounce.String(),
			Scopes:       c.Daemon.Scopes,
		},
		Dashboard: c.Dashboard,
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves c as TOML at path. An existing file is only replaced when
// overwrite is set.
func (c *Config) Write(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := c.Encode()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
