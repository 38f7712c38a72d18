package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/gigboard/dispatch/errors"
)

// Load reads the dispatch configuration using Viper.
// Lookup order: explicit path (if non-empty), ./dispatch.toml, then defaults.
// Environment variables prefixed with DISPATCH_ override file values
// (e.g. DISPATCH_SERVER_ADDR overrides server.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("dispatch")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing config file is fine - run on defaults
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "failed to read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("queue.workers", DefaultWorkers)
	v.SetDefault("queue.poll_interval", DefaultPollInterval)
	v.SetDefault("queue.stalled_after", DefaultStalledAfter)
	v.SetDefault("queue.sweep_every", DefaultSweepEvery)
	v.SetDefault("skillfolio.settle_delay", DefaultSettleDelay)
}
