// Package config holds all cogito configuration: oracle transport, kernel
// budgets, tool registry contents, and logging. Files are YAML; environment
// variables override the file; a missing file means defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cogito configuration.
type Config struct {
	// Oracle transport
	Oracle OracleConfig `yaml:"oracle"`

	// Kernel budgets and bounds
	Kernel KernelConfig `yaml:"kernel"`

	// Tool names plans may reference
	Tools []string `yaml:"tools"`

	// Convergence threshold overrides
	Criteria []CriterionConfig `yaml:"criteria"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OracleConfig configures the oracle client.
type OracleConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

// KernelConfig bounds the execution loop.
type KernelConfig struct {
	BaseTTL         int    `yaml:"base_ttl"`
	MaxTTL          int    `yaml:"max_ttl"`
	MaxNestingDepth int    `yaml:"max_nesting_depth"`
	SnapshotDir     string `yaml:"snapshot_dir"`
}

// CriterionConfig is one convergence threshold override.
type CriterionConfig struct {
	Dimension string  `yaml:"dimension"`
	Threshold float64 `yaml:"threshold"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Model:     "gpt-4o",
			BaseURL:   "https://api.openai.com/v1",
			MaxTokens: 4096,
			Timeout:   "120s",
		},
		Kernel: KernelConfig{
			BaseTTL:         3,
			MaxTTL:          20,
			MaxNestingDepth: 3,
			SnapshotDir:     ".cogito/runs",
		},
		Tools: []string{"search", "read_file", "write_file", "run_command"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("COGITO_API_KEY"); key != "" {
		c.Oracle.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Oracle.APIKey == "" {
		c.Oracle.APIKey = key
	}
	if url := os.Getenv("COGITO_BASE_URL"); url != "" {
		c.Oracle.BaseURL = url
	}
	if model := os.Getenv("COGITO_MODEL"); model != "" {
		c.Oracle.Model = model
	}
	if dir := os.Getenv("COGITO_SNAPSHOT_DIR"); dir != "" {
		c.Kernel.SnapshotDir = dir
	}
	if v := os.Getenv("COGITO_MAX_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Kernel.MaxTTL = n
		}
	}
	if level := os.Getenv("COGITO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// OracleTimeout returns the oracle timeout as a duration.
func (c *Config) OracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// Validate checks the loaded configuration for values the kernel cannot run
// with.
func (c *Config) Validate() error {
	if c.Kernel.BaseTTL < 1 {
		return fmt.Errorf("kernel.base_ttl must be at least 1, got %d", c.Kernel.BaseTTL)
	}
	if c.Kernel.MaxTTL < c.Kernel.BaseTTL {
		return fmt.Errorf("kernel.max_ttl %d below base_ttl %d", c.Kernel.MaxTTL, c.Kernel.BaseTTL)
	}
	if c.Kernel.MaxNestingDepth < 1 {
		return fmt.Errorf("kernel.max_nesting_depth must be at least 1, got %d", c.Kernel.MaxNestingDepth)
	}
	return nil
}
