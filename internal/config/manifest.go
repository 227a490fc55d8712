package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Manifest describes one deployed application: which sandbox runs it and
// with what arguments. It lives next to the app in the spool directory.
type Manifest struct {
	Name    string          `yaml:"name"`
	Sandbox SandboxManifest `yaml:"sandbox"`
}

// SandboxManifest selects the sandbox implementation for an app.
type SandboxManifest struct {
	Type string                 `yaml:"type"` // e.g., "native", "echo"
	Args map[string]interface{} `yaml:"args"`
}

// LoadManifest reads the manifest of the named application from the spool.
func LoadManifest(cfg *Config, app string) (*Manifest, error) {
	path := filepath.Join(cfg.Paths.Spool, app, "manifest.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest for app %q: %w", app, err)
	}

	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if manifest.Name == "" {
		manifest.Name = app
	}
	if manifest.Sandbox.Type == "" {
		return nil, fmt.Errorf("manifest %s: sandbox type is not set", path)
	}

	return manifest, nil
}
