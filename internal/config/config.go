// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// KeyEntry is one API key listed directly in the config file, used when no
// database is configured.
type KeyEntry struct {
	Secret string `json:"secret" validate:"required,min=20"`
	Name   string `json:"name,omitempty"`
}

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	Input string `json:"input,omitempty"` // Directory of media files to process

	// Keys
	APIKeys     []KeyEntry `json:"api_keys,omitempty" validate:"dive"` // Keys used when no database is configured
	DatabaseURL string     `json:"database_url,omitempty"`             // PostgreSQL connection URL for key persistence

	// Scheduling
	MaxRetries        int `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	CapacityPerMinute int `json:"capacity_per_minute,omitempty" validate:"gte=0,lte=120"` // Per-key requests per minute

	// Generation
	Model             string `json:"model,omitempty"`
	TitleLength       int    `json:"title_length,omitempty" validate:"gte=0,lte=200"`
	KeywordCount      int    `json:"keyword_count,omitempty" validate:"gte=0,lte=50"`
	DescriptionLength int    `json:"description_length,omitempty" validate:"gte=0,lte=500"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"`
}

// DefaultConfig returns the built-in defaults. The per-key capacity defaults
// to 12 requests/minute but stays configuration rather than a constant;
// providers state different numbers for different tiers.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		CapacityPerMinute: 12,
		Model:             "gemini-2.5-flash",
		TitleLength:       70,
		KeywordCount:      25,
		DescriptionLength: 160,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Input != "" {
		info, err := os.Stat(c.Input)
		if os.IsNotExist(err) {
			return fmt.Errorf("config error: input directory not found: %s", c.Input)
		}
		if err == nil && !info.IsDir() {
			return fmt.Errorf("config error: input is not a directory: %s", c.Input)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Input == "" {
		result.Input = defaults.Input
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}

	// Int fields: use default if zero
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.CapacityPerMinute == 0 {
		result.CapacityPerMinute = defaults.CapacityPerMinute
	}
	if result.TitleLength == 0 {
		result.TitleLength = defaults.TitleLength
	}
	if result.KeywordCount == 0 {
		result.KeywordCount = defaults.KeywordCount
	}
	if result.DescriptionLength == 0 {
		result.DescriptionLength = defaults.DescriptionLength
	}

	if len(result.APIKeys) == 0 {
		result.APIKeys = defaults.APIKeys
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
