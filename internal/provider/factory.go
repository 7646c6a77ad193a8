package provider

import (
	"fmt"

	"github.com/felixgeelhaar/recall/internal/config"
)

// New builds the provider named in cfg.
func New(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "", "stub":
		return NewStubProvider(), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model)
	case "anthropic":
		p, err := NewAnthropicProvider(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			p.SetBaseURL(cfg.BaseURL)
		}
		return p, nil
	case "cli":
		if cfg.CLIPath != "" {
			return NewCLIProvider(cfg.CLIPath, nil)
		}
		return DetectCLIProvider()
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
