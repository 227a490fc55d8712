package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadConfig loads the process configuration and applies default values.
func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", file, err)
	}

	ApplyDefaults(cfg)

	return cfg, nil
}

// ApplyDefaults fills in defaults for unset configuration values.
func ApplyDefaults(cfg *Config) {
	if cfg.Paths.Runtime == "" {
		cfg.Paths.Runtime = "/var/run/anvil"
	}
	if cfg.Paths.Spool == "" {
		cfg.Paths.Spool = "/var/spool/anvil"
	}
	if cfg.Paths.Profiles == "" {
		cfg.Paths.Profiles = "/etc/anvil/profiles"
	}

	if cfg.Worker.HeartbeatIntervalSeconds == 0 {
		cfg.Worker.HeartbeatIntervalSeconds = 5 // protocol baseline
	}
	if cfg.Worker.IOBulkSize == 0 {
		cfg.Worker.IOBulkSize = 256 // drain loop fairness bound
	}
}
