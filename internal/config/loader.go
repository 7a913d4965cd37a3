package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "metricgrid.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "metricgrid.yml"

// envPrefix namespaces the environment overrides
// (METRICGRID_STATE_PATH -> state_path).
const envPrefix = "METRICGRID_"

// Load builds the configuration by layering, lowest priority first:
// built-in defaults, the config file at path (optional, discovered when
// empty), then METRICGRID_-prefixed environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"org":        DefaultOrg,
		"state_path": DefaultStatePath,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			if root := FindProjectRoot(cwd); root != "" {
				path = findConfigFile(root)
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// findConfigFile returns the config file inside dir, or "".
func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to find a directory containing
// metricgrid.yaml or metricgrid.yml. Returns "" if none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
