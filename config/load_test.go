package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a directory without a dispatch.toml
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultWorkers, cfg.Queue.Workers)
	assert.Equal(t, DefaultPollInterval, cfg.Queue.PollInterval)
	assert.Equal(t, DefaultStalledAfter, cfg.Queue.StalledAfter)
	assert.Equal(t, DefaultSweepEvery, cfg.Queue.SweepEvery)
	assert.Equal(t, DefaultSettleDelay, cfg.Skillfolio.SettleDelay)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.toml")
	content := `
[database]
path = "/var/lib/dispatch/jobs.db"

[server]
addr = ":9000"
allowed_origins = ["https://app.example.com"]

[queue]
workers = 4
poll_interval = "250ms"
sweep_every = "1m"

[skillfolio]
settle_delay = "50ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/dispatch/jobs.db", cfg.Database.Path)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, time.Minute, cfg.Queue.SweepEvery)
	assert.Equal(t, 50*time.Millisecond, cfg.Skillfolio.SettleDelay)

	// Values the file omits fall back to defaults
	assert.Equal(t, DefaultStalledAfter, cfg.Queue.StalledAfter)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DISPATCH_SERVER_ADDR", ":7777")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}
