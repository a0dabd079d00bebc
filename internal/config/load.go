package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const currentVersion = 1

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "PIPESTREAM_"

// envelope is the versioned on-disk format.
type envelope struct {
	Version int     `json:"version"`
	Config  *Config `json:"config"`
}

// Load reads a configuration file.
// Returns nil, nil if the file does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if e.Version == 0 {
		return nil, fmt.Errorf("unversioned config file %s", path)
	}
	if e.Version > currentVersion {
		return nil, fmt.Errorf("config file version %d is newer than supported version %d", e.Version, currentVersion)
	}
	if e.Config == nil {
		return nil, nil
	}
	return e.Config, nil
}

// Save atomically writes cfg to path with round-trip validation.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(envelope{Version: currentVersion, Config: cfg}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	check, err := os.ReadFile(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", err)
	}
	var verify envelope
	if err := json.Unmarshal(check, &verify); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays PIPESTREAM_* environment variables onto cfg. Unset
// variables leave the loaded values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
