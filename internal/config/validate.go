package config

import (
	"errors"
	"fmt"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

type ValidationReport struct {
	Warnings []string
}

func (c ChatConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, name := range c.Providers {
		switch name {
		case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
		default:
			return fmt.Errorf("unsupported provider %q", name)
		}
		if seen[name] {
			return fmt.Errorf("provider %q listed twice", name)
		}
		seen[name] = true
	}
	if c.MaxIterations < 1 {
		return errors.New("max_iterations must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	return nil
}

func (c ToolsConfig) Validate() error {
	if len(c.Enabled) == 0 {
		return errors.New("at least one tool must be enabled")
	}
	seen := make(map[string]bool, len(c.Enabled))
	for _, name := range c.Enabled {
		if name == "" {
			return errors.New("tool name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("tool %q listed twice", name)
		}
		seen[name] = true
	}
	return nil
}

func (c ChannelConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Token == "" {
		return errors.New("token is required when enabled=true")
	}
	return nil
}

func (c CostsConfig) Validate() error {
	if c.DailyLimit < 0 {
		return errors.New("daily_limit must not be negative")
	}
	if c.MonthlyLimit < 0 {
		return errors.New("monthly_limit must not be negative")
	}
	return nil
}

// validateProvider checks one llm.* section. Required fields depend on the
// provider kind: openai deployments may substitute a base_url for an api_key.
func validateProvider(kind string, c ProviderConfig) error {
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.MaxTokens < 1 {
		return errors.New("max_tokens must be at least 1")
	}
	switch kind {
	case ProviderAnthropic, ProviderGemini:
		if c.APIKey == "" {
			return errors.New("api_key is required")
		}
	case ProviderOpenAI:
		if c.APIKey == "" && c.BaseURL == "" {
			return errors.New("api_key or base_url is required")
		}
	default:
		return fmt.Errorf("unsupported provider %q", kind)
	}
	return nil
}

// ValidateStartup validates startup configuration and returns warning messages.
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	var errs []error
	report := &ValidationReport{}

	if err := cfg.Chat.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chat: %w", err))
	}
	if err := cfg.Tools.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tools: %w", err))
	}
	if err := cfg.Costs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("costs: %w", err))
	}

	// Only the providers named in the preference order need credentials;
	// extra llm.* sections are inert and not validated.
	for _, name := range cfg.Chat.Providers {
		if err := validateProvider(name, cfg.Provider(name)); err != nil {
			errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
		}
	}

	for name, chCfg := range cfg.Channels {
		if err := chCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", name, err))
		}
		if name == "telegram" && chCfg.Enabled && len(chCfg.AllowedChatIDs) == 0 {
			report.Warnings = append(report.Warnings, "channels.telegram.allowed_chat_ids is empty; all chats will be refused")
		}
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}
