package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// viperAt returns a viper that only looks for the config file in dir.
func viperAt(t *testing.T, dir string) *Config {
	t.Helper()
	v := NewViper()
	v.SetConfigFile(filepath.Join(dir, FileName))
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(".zonesync", "zonesync.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(".zonesync", "inbox"), cfg.InboxDir())
	assert.Equal(t, filepath.Join(".zonesync", "outbox"), cfg.OutboxDir())
	assert.Empty(t, cfg.LogFile())

	scopes, err := cfg.Scopes()
	require.NoError(t, err)
	assert.Equal(t, []record.Scope{record.ScopeLocal, record.ScopeShared}, scopes)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWriteLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	want := Default()
	want.DataDir = dir
	want.PageSize = 25
	want.Log.Level = "debug"
	want.Log.File = "zonesync.log"
	want.Daemon.PollInterval = 90 * time.Second
	want.Daemon.Debounce = 50 * time.Millisecond
	want.Daemon.Scopes = []string{"shared"}
	want.Dashboard.Enabled = true
	want.Dashboard.Port = 9000

	require.NoError(t, want.Write(filepath.Join(dir, FileName), false))

	got := viperAt(t, dir)
	assert.Equal(t, want, got)
	assert.Equal(t, filepath.Join(dir, "zonesync.log"), got.LogFile())
}

func TestWrite_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Default().Write(path, false))

	assert.Error(t, Default().Write(path, false))
	assert.NoError(t, Default().Write(path, true))
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Default().Write(filepath.Join(dir, FileName), false))

	t.Setenv("ZONESYNC_PAGE_SIZE", "7")
	t.Setenv("ZONESYNC_LOG_LEVEL", "warn")
	t.Setenv("ZONESYNC_DAEMON_POLL_INTERVAL", "5s")
	t.Setenv("ZONESYNC_DAEMON_SCOPES", "local")

	cfg := viperAt(t, dir)
	assert.Equal(t, 7, cfg.PageSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Daemon.PollInterval)
	assert.Equal(t, []string{"local"}, cfg.Daemon.Scopes)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("page_size = 0\n"), 0644))

	v := NewViper()
	v.SetConfigFile(path)
	_, err := Load(v)
	assert.ErrorContains(t, err, "page_size")

	require.NoError(t, os.WriteFile(path, []byte("page_size = [\n"), 0644))
	_, err = Load(v)
	assert.ErrorContains(t, err, "failed to read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir"},
		{"empty database", func(c *Config) { c.Database = "" }, "database"},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"zero poll interval", func(c *Config) { c.Daemon.PollInterval = 0 }, "poll_interval"},
		{"negative debounce", func(c *Config) { c.Daemon.Debounce = -time.Second }, "debounce"},
		{"same directories", func(c *Config) { c.Daemon.Outbox = c.Daemon.Inbox }, "must differ"},
		{"no scopes", func(c *Config) { c.Daemon.Scopes = nil }, "at least one scope"},
		{"unknown scope", func(c *Config) { c.Daemon.Scopes = []string{"public"} }, "unknown scope"},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestResolve_AbsolutePaths(t *testing.T) {
	cfg := Default()
	abs := filepath.Join(t.TempDir(), "elsewhere.db")
	cfg.Database = abs
	assert.Equal(t, abs, cfg.DatabasePath())
}
