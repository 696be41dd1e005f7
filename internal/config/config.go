// Package config loads the wshealth configuration file.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.wshealth/wshealth.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Metadata MetadataConfig `yaml:"metadata"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Health   HealthConfig   `yaml:"health,omitempty"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
}

// MetadataConfig locates the metadata model. Either URL (a PostgreSQL
// metadata database) or File (a YAML document) must be set.
type MetadataConfig struct {
	URL            string `yaml:"url,omitempty"`
	File           string `yaml:"file,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 4
}

// RedisConfig enables the shared fix lock. Empty Addr means in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// HealthConfig holds health check defaults.
type HealthConfig struct {
	Mode        string        `yaml:"mode,omitempty"`        // structure, metadata or all
	Concurrency int           `yaml:"concurrency,omitempty"` // default 4
	LockTTL     time.Duration `yaml:"lock_ttl,omitempty"`    // default 5m
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // trace, debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Load reads and parses the config file from the given path.
func Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(ctx); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Metadata.MaxConnections == 0 {
		c.Metadata.MaxConnections = 4
	}
	if c.Health.Mode == "" {
		c.Health.Mode = "all"
	}
	if c.Health.Concurrency == 0 {
		c.Health.Concurrency = 4
	}
	if c.Health.LockTTL == 0 {
		c.Health.LockTTL = 5 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that the metadata source is unambiguous.
func (c *Config) Validate() error {
	if c.Metadata.URL != "" && c.Metadata.File != "" {
		return fmt.Errorf("metadata: url and file are mutually exclusive")
	}
	switch c.Health.Mode {
	case "structure", "metadata", "all":
	default:
		return fmt.Errorf("health: unknown mode %q", c.Health.Mode)
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets(ctx context.Context) error {
	var err error
	c.Metadata.URL, err = ResolveValue(ctx, c.Metadata.URL)
	if err != nil {
		return fmt.Errorf("metadata url: %w", err)
	}
	c.Redis.Password, err = ResolveValue(ctx, c.Redis.Password)
	if err != nil {
		return fmt.Errorf("redis password: %w", err)
	}
	return nil
}

// ResolveValue resolves a secret reference of the form ${PROVIDER:ref}.
// Values without a reference pass through unchanged.
func ResolveValue(ctx context.Context, val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ctx, ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
