package config

import "time"

// Config is the process-level configuration shared by every worker launched
// on a host. Per-application settings live in the manifest and profile.
type Config struct {
	Paths  PathsConfig  `yaml:"paths"`
	Worker WorkerConfig `yaml:"worker"`
}

// PathsConfig names the host directories the worker touches.
type PathsConfig struct {
	Runtime  string `yaml:"runtime"`  // e.g., "/var/run/anvil" - engine IPC endpoints
	Spool    string `yaml:"spool"`    // e.g., "/var/spool/anvil" - unpacked apps and manifests
	Profiles string `yaml:"profiles"` // e.g., "/etc/anvil/profiles" - runtime profiles
	Logs     string `yaml:"logs"`     // empty disables file logging
}

// WorkerConfig carries the protocol knobs. The defaults are the protocol's
// documented baseline; deployments rarely need to touch them.
type WorkerConfig struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"` // e.g., 5
	IOBulkSize               int `yaml:"io_bulk_size"`               // e.g., 256 - drain loop fairness bound
}

func (w WorkerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatIntervalSeconds) * time.Second
}
