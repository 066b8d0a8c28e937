package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agentic-research/mastercopy/api"
	"github.com/agentic-research/mastercopy/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file configuration.
const (
	EnvLibrary  = "MASTERCOPY_LIBRARY"
	EnvProject  = "MASTERCOPY_PROJECT"
	EnvLogLevel = "MASTERCOPY_LOG_LEVEL"
)

type Config struct {
	Library string        `yaml:"library"`
	Project ProjectConfig `yaml:"project"`
	Apply   ApplyConfig   `yaml:"apply"`
	Log     LogConfig     `yaml:"log"`
}

type ProjectConfig struct {
	Path string `yaml:"path"`
	// Kind is the software the tree is materialized into: "block" or "screen".
	Kind string `yaml:"kind"`
}

type ApplyConfig struct {
	MergeRoot bool   `yaml:"merge_root"`
	Selector  string `yaml:"selector"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Path: "project.db",
			Kind: "block",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file, or an
// empty path, yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv; see Lookup for layering a .env file below it.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvLibrary); ok && v != "" {
		c.Library = v
	}
	if v, ok := lookup(EnvProject); ok && v != "" {
		c.Project.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Lookup returns an environment lookup that prefers the process environment
// and falls back to the variables of a .env file. A missing file is ignored.
func Lookup(dotenv string) (func(string) (string, bool), error) {
	vars := map[string]string{}
	if dotenv != "" {
		read, err := godotenv.Read(dotenv)
		switch {
		case err == nil:
			vars = read
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading %s: %w", dotenv, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// Kind returns the configured project software kind.
func (c *Config) Kind() api.Kind {
	k, _ := api.ParseKind(c.Project.Kind)
	return k
}

func (c *Config) Validate() error {
	k, err := api.ParseKind(c.Project.Kind)
	if err != nil {
		return fmt.Errorf("project.kind: %w", err)
	}
	if !k.IsContent() {
		return fmt.Errorf("project.kind: must be block or screen, got %q", c.Project.Kind)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: must be console or json, got %q", c.Log.Format)
	}
	return nil
}
