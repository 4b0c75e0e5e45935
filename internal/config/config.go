// Package config stores the command line defaults: which cable to open, its
// parameters, and where BSDL files live.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/jtagchain/pkg/chain"
)

// Config is the persistent settings file.
type Config struct {
	Cable       string            `json:"cable"`
	Params      map[string]string `json:"params,omitempty"`
	Frequency   int               `json:"frequency,omitempty"` // Hertz, 0 keeps the cable default
	BSDLDirs    []string          `json:"bsdl_dirs,omitempty"`
	MaxParts    int               `json:"max_parts,omitempty"`
	MaxIRLength int               `json:"max_ir_length,omitempty"`
	LogLevel    string            `json:"log_level,omitempty"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Cable:       "sim",
		Params:      map[string]string{},
		MaxParts:    chain.DefaultLimits.MaxParts,
		MaxIRLength: chain.DefaultLimits.MaxIRLength,
		LogLevel:    logrus.InfoLevel.String(),
	}
}

// Path returns the per-user config file location.
func Path() (string, error) {
	if dir := os.Getenv("APPDATA"); dir != "" {
		// Windows: %APPDATA%\jtagchain
		return filepath.Join(dir, "jtagchain", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jtagchain", "config.json"), nil
}

// Load reads path. A missing file yields Default; fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the file at Path.
func LoadDefault() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return Load(path)
}

// Save writes the config as indented JSON, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks the numeric limits and the log level.
func (c *Config) Validate() error {
	if c.Frequency < 0 {
		return fmt.Errorf("negative frequency %d", c.Frequency)
	}
	if c.MaxParts < 1 || c.MaxIRLength < 2 {
		return fmt.Errorf("limits out of range: max_parts %d, max_ir_length %d", c.MaxParts, c.MaxIRLength)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Limits returns the detection limits.
func (c *Config) Limits() chain.Limits {
	return chain.Limits{MaxParts: c.MaxParts, MaxIRLength: c.MaxIRLength}
}

// Level returns the parsed log level, Info when unset or malformed.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
