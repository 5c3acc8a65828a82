package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultRetryAttempts = 3
	defaultRetryMinWait  = 1 * time.Second
	defaultRetryMaxWait  = 30 * time.Second
	defaultConcurrency   = 4
)

// Config is the top-level configuration for charmci.
type Config struct {
	Credentials Credentials `yaml:"credentials"`
	Workdir     string      `yaml:"workdir"`   // Where local checkouts live
	Modules     []string    `yaml:"modules"`   // Terraform manifest files to parse
	Blacklist   []string    `yaml:"blacklist"` // Repository URLs to exclude
	Retry       RetryConfig `yaml:"retry"`
	Concurrency int         `yaml:"concurrency"` // Bounded worker pool size for batch operations
}

// Credentials is the immutable identity/token pair used to authenticate
// against the hosting API. Created once at startup, never mutated.
type Credentials struct {
	Username string `yaml:"username"`
	Token    string `yaml:"token"` // Inline, ${ENV_VAR}, or file path
}

// RetryConfig is the explicit retry/backoff policy for rate-limited or
// transient API failures.
type RetryConfig struct {
	Attempts int      `yaml:"attempts"`
	MinWait  Duration `yaml:"min_wait"`
	MaxWait  Duration `yaml:"max_wait"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Load reads and parses a configuration file, expanding environment
// variables, resolving token file paths, and applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	cfg.Credentials.Token = resolveToken(cfg.Credentials.Token)
	applyDefaults(&cfg)

	if validateErr := validate(&cfg); validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// FindConfigFile searches for a configuration file in standard locations.
// Returns the path to the first file found or an error if none is found.
func FindConfigFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}

	locations := []string{
		".",
		".config",
		"configs",
	}
	if homeDir != "" {
		locations = append(
			locations,
			homeDir,
			filepath.Join(homeDir, ".config"),
		)
	}

	patterns := []string{
		".charmci.yaml",
		".charmci.yml",
		"charmci.yaml",
		"charmci.yml",
	}

	for _, loc := range locations {
		for _, pat := range patterns {
			p := filepath.Join(loc, pat)
			if _, statErr := os.Stat(p); statErr == nil {
				return p, nil
			}
		}
	}

	return "", errors.New("config file not found in default locations")
}

// resolveToken expands environment variable references (${VAR}) and, if the
// resulting string is a path to an existing file, reads the token from the file.
func resolveToken(raw string) string {
	if raw == "" {
		return raw
	}

	// Expand ${ENV_VAR} references
	resolved := envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		logger.Warnf("Environment variable %q is not set", varName)
		return ""
	})

	// If the resolved value is a path to an existing file, read the token from it
	if _, statErr := os.Stat(resolved); statErr == nil {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			logger.Warnf("Failed to read token file %q: %v", resolved, readErr)
			return resolved
		}
		logger.Infof("Read token from file %q", resolved)
		return strings.TrimSpace(string(data))
	}

	return resolved
}

// applyDefaults fills unset fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Workdir == "" {
		if cacheDir, err := os.UserCacheDir(); err == nil {
			cfg.Workdir = filepath.Join(cacheDir, "charmci", "repos")
		} else {
			cfg.Workdir = filepath.Join(os.TempDir(), "charmci", "repos")
		}
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = defaultRetryAttempts
	}
	if cfg.Retry.MinWait == 0 {
		cfg.Retry.MinWait = Duration(defaultRetryMinWait)
	}
	if cfg.Retry.MaxWait == 0 {
		cfg.Retry.MaxWait = Duration(defaultRetryMaxWait)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
}

// validate checks for required configuration values.
func validate(cfg *Config) error {
	if cfg.Credentials.Username == "" {
		return errors.New("credentials.username is required")
	}
	if cfg.Credentials.Token == "" {
		return errors.New(
			"credentials.token is required (set inline, via ${ENV_VAR}, or as file path)",
		)
	}
	if len(cfg.Modules) == 0 {
		return errors.New("modules must have at least one manifest entry")
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	return nil
}
