package memory

import "fmt"

// Config holds capacities and thresholds for the memory tiers.
type Config struct {
	// WorkingCapacity is the default PruneMemory target.
	WorkingCapacity int `mapstructure:"working_capacity" yaml:"working_capacity" json:"working_capacity"`
	// TurnCapacity bounds the conversation-turn ring.
	TurnCapacity int `mapstructure:"turn_capacity" yaml:"turn_capacity" json:"turn_capacity"`
	// ConsolidationInterval triggers consolidation every N interactions.
	ConsolidationInterval int `mapstructure:"consolidation_interval" yaml:"consolidation_interval" json:"consolidation_interval"`
	// PromotionThreshold is the minimum importance promoted by consolidation.
	PromotionThreshold int `mapstructure:"promotion_threshold" yaml:"promotion_threshold" json:"promotion_threshold"`
	// ExtractionWindow is the number of recent episodes scanned for knowledge.
	ExtractionWindow int `mapstructure:"extraction_window" yaml:"extraction_window" json:"extraction_window"`
	// EnrichmentConversations is the number of recent conversations in an enriched context.
	EnrichmentConversations int `mapstructure:"enrichment_conversations" yaml:"enrichment_conversations" json:"enrichment_conversations"`
	// HitsPerKeyword caps search hits per query keyword during enrichment.
	HitsPerKeyword int `mapstructure:"hits_per_keyword" yaml:"hits_per_keyword" json:"hits_per_keyword"`
	// SummaryWindow caps the conversations read when summarizing a session.
	SummaryWindow int `mapstructure:"summary_window" yaml:"summary_window" json:"summary_window"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WorkingCapacity:         20,
		TurnCapacity:            10,
		ConsolidationInterval:   5,
		PromotionThreshold:      4,
		ExtractionWindow:        20,
		EnrichmentConversations: 5,
		HitsPerKeyword:          2,
		SummaryWindow:           1000,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.WorkingCapacity == 0 {
		c.WorkingCapacity = d.WorkingCapacity
	}
	if c.TurnCapacity == 0 {
		c.TurnCapacity = d.TurnCapacity
	}
	if c.ConsolidationInterval == 0 {
		c.ConsolidationInterval = d.ConsolidationInterval
	}
	if c.PromotionThreshold == 0 {
		c.PromotionThreshold = d.PromotionThreshold
	}
	if c.ExtractionWindow == 0 {
		c.ExtractionWindow = d.ExtractionWindow
	}
	if c.EnrichmentConversations == 0 {
		c.EnrichmentConversations = d.EnrichmentConversations
	}
	if c.HitsPerKeyword == 0 {
		c.HitsPerKeyword = d.HitsPerKeyword
	}
	if c.SummaryWindow == 0 {
		c.SummaryWindow = d.SummaryWindow
	}
}

// Validate rejects negative capacities and out-of-range thresholds.
func (c Config) Validate() error {
	checks := []struct {
		name string
		v    int
	}{
		{"working_capacity", c.WorkingCapacity},
		{"turn_capacity", c.TurnCapacity},
		{"consolidation_interval", c.ConsolidationInterval},
		{"extraction_window", c.ExtractionWindow},
		{"enrichment_conversations", c.EnrichmentConversations},
		{"hits_per_keyword", c.HitsPerKeyword},
		{"summary_window", c.SummaryWindow},
	}
	for _, ch := range checks {
		if ch.v <= 0 {
			return NewError(ErrCodeInvalidConfig, fmt.Sprintf("memory.%s must be positive, got %d", ch.name, ch.v))
		}
	}
	if c.PromotionThreshold < MinImportance || c.PromotionThreshold > MaxImportance {
		return NewError(ErrCodeInvalidConfig, fmt.Sprintf("memory.promotion_threshold must be within %d-%d, got %d", MinImportance, MaxImportance, c.PromotionThreshold))
	}
	return nil
}
