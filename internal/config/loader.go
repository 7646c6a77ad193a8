package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/felixgeelhaar/recall/internal/credential"
)

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path. RECALL_* environment variables override
// file values, and ${VAR} references inside string values are expanded.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// LoadWithDefaults is Load, except a missing file yields the defaults with
// environment overrides applied.
func LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return decode(newViper(path))
	}
	return Load(path)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every key so AutomaticEnv can resolve it on Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.in_memory", d.Database.InMemory)

	v.SetDefault("memory.working_capacity", d.Memory.WorkingCapacity)
	v.SetDefault("memory.turn_capacity", d.Memory.TurnCapacity)
	v.SetDefault("memory.consolidation_interval", d.Memory.ConsolidationInterval)
	v.SetDefault("memory.promotion_threshold", d.Memory.PromotionThreshold)
	v.SetDefault("memory.extraction_window", d.Memory.ExtractionWindow)
	v.SetDefault("memory.enrichment_conversations", d.Memory.EnrichmentConversations)
	v.SetDefault("memory.hits_per_keyword", d.Memory.HitsPerKeyword)
	v.SetDefault("memory.summary_window", d.Memory.SummaryWindow)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.api_key", d.Provider.APIKey)
	v.SetDefault("provider.cli_path", d.Provider.CLIPath)

	v.SetDefault("guard.max_query_length", d.Guard.MaxQueryLength)
	v.SetDefault("guard.max_content_length", d.Guard.MaxContentLength)
	v.SetDefault("guard.max_interactions", d.Guard.MaxInteractions)
	v.SetDefault("guard.allowed_categories", d.Guard.AllowedCategories)
	v.SetDefault("guard.denied_categories", d.Guard.DeniedCategories)
}

func decode(v *viper.Viper) (*Config, error) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if expanded := interpolateString(s); expanded != s {
			v.Set(key, expanded)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if credential.IsSealed(cfg.Provider.APIKey) {
		s, err := credential.NewSealer()
		if err != nil {
			return nil, err
		}
		if cfg.Provider.APIKey, err = s.Open(cfg.Provider.APIKey); err != nil {
			return nil, fmt.Errorf("failed to open provider.api_key: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// interpolateString replaces ${VAR} with the variable's value. Unset
// variables are left as written.
func interpolateString(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}
