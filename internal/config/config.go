// Package config loads the recall configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/store"
)

// Config is the root configuration.
type Config struct {
	Database store.Config   `mapstructure:"database" yaml:"database" json:"database"`
	Memory   memory.Config  `mapstructure:"memory" yaml:"memory" json:"memory"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider" json:"provider"`
	Guard    guard.Policy   `mapstructure:"guard" yaml:"guard" json:"guard"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// ProviderConfig selects the responder used by chat and process_interaction.
type ProviderConfig struct {
	Name    string `mapstructure:"name" yaml:"name" json:"name"`
	Model   string `mapstructure:"model" yaml:"model" json:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	CLIPath string `mapstructure:"cli_path" yaml:"cli_path" json:"cli_path"`
}

// Providers lists the accepted provider names.
var Providers = []string{"stub", "openai", "ollama", "gemini", "anthropic", "cli"}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// HomeDir returns the directory holding the config file and database.
// RECALL_HOME overrides the default of ~/.recall.
func HomeDir() string {
	if dir := os.Getenv("RECALL_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall"
	}
	return filepath.Join(home, ".recall")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Database: store.Config{Path: filepath.Join(HomeDir(), "memory.db")},
		Memory:   memory.DefaultConfig(),
		Logging:  LoggingConfig{Level: "warn", Format: "console"},
		Provider: ProviderConfig{Name: "stub"},
		Guard:    guard.DefaultPolicy,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Database.Path == "" && !c.Database.InMemory {
		c.Database.Path = d.Database.Path
	}
	c.Memory.ApplyDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Provider.Name == "" {
		c.Provider.Name = d.Provider.Name
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		return invalid("logging.level must be one of %v, got %q", logLevels, c.Logging.Level)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		return invalid("logging.format must be one of %v, got %q", logFormats, c.Logging.Format)
	}
	if !slices.Contains(Providers, c.Provider.Name) {
		return invalid("provider.name must be one of %v, got %q", Providers, c.Provider.Name)
	}
	if c.Guard.MaxQueryLength < 0 || c.Guard.MaxContentLength < 0 || c.Guard.MaxInteractions < 0 {
		return invalid("guard limits must not be negative")
	}
	if err := c.Guard.ValidatePatterns(); err != nil {
		return memory.Wrap(memory.ErrCodeInvalidConfig, "guard", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return memory.NewError(memory.ErrCodeInvalidConfig, fmt.Sprintf(format, args...))
}
