// Package config holds the typed dispatch configuration, loaded via Viper.
package config

import "time"

// Config represents the core dispatch configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Skillfolio SkillfolioConfig `mapstructure:"skillfolio"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the dispatch HTTP server
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// QueueConfig configures the persistent job queue and its worker pool
type QueueConfig struct {
	// Number of concurrent job workers (default: 1)
	Workers int `mapstructure:"workers"`

	// How often workers poll for new jobs
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Active jobs older than this are considered stalled and re-queued
	StalledAfter time.Duration `mapstructure:"stalled_after"`

	// How often the completed-job sweep runs
	SweepEvery time.Duration `mapstructure:"sweep_every"`
}

// SkillfolioConfig configures skillfolio generation
type SkillfolioConfig struct {
	// Delay inserted between generation and completion so downstream
	// consumers observe a settled artifact
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// Defaults used when the config file omits values.
const (
	DefaultServerAddr   = ":8710"
	DefaultDatabasePath = "dispatch.db"
	DefaultWorkers      = 1
	DefaultPollInterval = 1 * time.Second
	DefaultStalledAfter = 5 * time.Minute
	DefaultSweepEvery   = 5 * time.Minute
	DefaultSettleDelay  = 500 * time.Millisecond
)
