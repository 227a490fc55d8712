package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Profile is the runtime profile an app runs under. The same profile
// document is shared with the orchestrator; the worker only acts on the
// heartbeat timeout, the rest describes pool placement.
type Profile struct {
	Name string `yaml:"-"`

	HeartbeatTimeoutSeconds   int `yaml:"heartbeat_timeout_seconds"`   // e.g., 30 - disown watchdog
	TerminationTimeoutSeconds int `yaml:"termination_timeout_seconds"` // e.g., 5
	PoolLimit                 int `yaml:"pool_limit"`                  // e.g., 10
	QueueLimit                int `yaml:"queue_limit"`                 // e.g., 100
}

func (p *Profile) HeartbeatTimeout() time.Duration {
	return time.Duration(p.HeartbeatTimeoutSeconds) * time.Second
}

// LoadProfile reads the named profile from the profiles directory and
// applies default values.
func LoadProfile(cfg *Config, name string) (*Profile, error) {
	path := filepath.Join(cfg.Paths.Profiles, name+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", name, err)
	}

	profile := &Profile{Name: name}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if profile.HeartbeatTimeoutSeconds == 0 {
		profile.HeartbeatTimeoutSeconds = 30
	}
	if profile.TerminationTimeoutSeconds == 0 {
		profile.TerminationTimeoutSeconds = 5
	}
	if profile.PoolLimit == 0 {
		profile.PoolLimit = 10
	}
	if profile.QueueLimit == 0 {
		profile.QueueLimit = 100
	}

	return profile, nil
}
