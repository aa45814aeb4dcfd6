package provider

import (
	"fmt"
	"strings"

	"github.com/millwright-ai/millwright/internal/config"
)

func resolveMaxTokens(requestMaxTokens, configuredMaxTokens int) int {
	if requestMaxTokens > 0 {
		return requestMaxTokens
	}
	return configuredMaxTokens
}

// New builds one LLM backend from its config section.
func New(name string, cfg config.ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case config.ProviderAnthropic:
		return newAnthropicProvider(cfg)
	case config.ProviderOpenAI:
		return newOpenAIProvider(cfg)
	case config.ProviderGemini:
		return newGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// NewSelectorFromConfig builds every backend named in the chat preference
// order and wraps them in a Selector.
func NewSelectorFromConfig(cfg *config.Config) (*Selector, error) {
	providers := make([]Provider, 0, len(cfg.Chat.Providers))
	for _, name := range cfg.Chat.Providers {
		p, err := New(name, cfg.Provider(name))
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", name, err)
		}
		providers = append(providers, p)
	}
	return NewSelector(providers, cfg.Chat.AvailabilityTTL), nil
}
