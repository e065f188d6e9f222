// Package config loads fffauto defaults from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = ".fffauto.yaml"

// DefaultOutput is the output base name used when none is configured.
const DefaultOutput = "autofakes"

// Config holds defaults for every command-line flag.
type Config struct {
	Output          string   `yaml:"output"`
	BuildPath       string   `yaml:"build_path"`
	Exclude         []string `yaml:"exclude"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	Pattern         string   `yaml:"pattern"`
	FullMatch       bool     `yaml:"full_match"`
	SingleFile      bool     `yaml:"single_file"`
	NoCache         bool     `yaml:"no_cache"`
	Hook            string   `yaml:"hook"`
	Verbose         bool     `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{Output: DefaultOutput}
}

// Load reads the config at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Read reads the config at path on top of the defaults. Unknown keys are
// an error. Relative build_path, exclude and hook entries are resolved
// against the config file's directory; built-in hooks are kept as is.
func Read(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := decodeKnownFields(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func decodeKnownFields(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		// An empty file has no document.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Output == "" {
		return errors.New("output must not be empty")
	}
	for _, p := range c.Exclude {
		if p == "" {
			return errors.New("exclude entries must not be empty")
		}
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.BuildPath = abs(c.BuildPath)
	if !strings.HasPrefix(c.Hook, "builtin:") {
		c.Hook = abs(c.Hook)
	}
	for i, p := range c.Exclude {
		c.Exclude[i] = abs(p)
	}
}
