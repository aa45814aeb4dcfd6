package config

import (
	"strings"
	"testing"
	"time"
)

var (
	_ Validatable = ChatConfig{}
	_ Validatable = ToolsConfig{}
	_ Validatable = ChannelConfig{}
	_ Validatable = CostsConfig{}
)

func validTestConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			Providers:      []string{ProviderAnthropic},
			MaxIterations:  10,
			RequestTimeout: time.Minute,
		},
		LLM: map[string]ProviderConfig{
			ProviderAnthropic: {APIKey: "k", Model: "m", MaxTokens: 4096},
		},
		Tools: ToolsConfig{Enabled: []string{"get_all_equipment"}},
		Channels: map[string]ChannelConfig{
			"telegram": {Enabled: false},
		},
	}
}

func TestValidateStartup_ValidConfigPasses(t *testing.T) {
	report, err := ValidateStartup(validTestConfig())
	if err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", report.Warnings)
	}
}

func TestValidateStartup_UnknownProviderKind(t *testing.T) {
	cfg := validTestConfig()
	cfg.Chat.Providers = []string{"mistral"}

	_, err := ValidateStartup(cfg)
	if err == nil || !strings.Contains(err.Error(), `unsupported provider "mistral"`) {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestValidateStartup_DuplicateProviderRejected(t *testing.T) {
	cfg := validTestConfig()
	cfg.Chat.Providers = []string{ProviderAnthropic, ProviderAnthropic}

	_, err := ValidateStartup(cfg)
	if err == nil || !strings.Contains(err.Error(), "listed twice") {
		t.Fatalf("expected duplicate provider error, got %v", err)
	}
}

func TestValidateStartup_AnthropicRequiresAPIKey(t *testing.T) {
	cfg := validTestConfig()
	cfg.LLM[ProviderAnthropic] = ProviderConfig{Model: "m", MaxTokens: 4096}

	_, err := ValidateStartup(cfg)
	if err == nil || !strings.Contains(err.Error(), "api_key is required") {
		t.Fatalf("expected anthropic api_key validation error, got %v", err)
	}
}

func TestValidateStartup_OpenAIBaseURLSubstitutesForKey(t *testing.T) {
	cfg := validTestConfig()
	cfg.Chat.Providers = []string{ProviderOpenAI}
	cfg.LLM[ProviderOpenAI] = ProviderConfig{
		Model:     "llama3",
		MaxTokens: 4096,
		BaseURL:   "http://localhost:11434/v1",
	}

	if _, err := ValidateStartup(cfg); err != nil {
		t.Fatalf("expected self-hosted openai config to pass without api key, got %v", err)
	}
}

func TestValidateStartup_GeminiRequiresAPIKey(t *testing.T) {
	cfg := validTestConfig()
	cfg.Chat.Providers = []string{ProviderGemini}
	cfg.LLM[ProviderGemini] = ProviderConfig{Model: "gemini-2.0-flash", MaxTokens: 4096}

	_, err := ValidateStartup(cfg)
	if err == nil || !strings.Contains(err.Error(), "llm.gemini") {
		t.Fatalf("expected gemini api_key validation error, got %v", err)
	}
}

func TestValidateStartup_DuplicateToolRejected(t *testing.T) {
	cfg := validTestConfig()
	cfg.Tools.Enabled = []string{"get_all_equipment", "get_all_equipment"}

	_, err := ValidateStartup(cfg)
	if err == nil || !strings.Contains(err.Error(), `tool "get_all_equipment" listed twice`) {
		t.Fatalf("expected duplicate tool error, got %v", err)
	}
}

func TestValidateStartup_TelegramAllowedChatIDsEmptyWarnsOnly(t *testing.T) {
	cfg := validTestConfig()
	cfg.Channels["telegram"] = ChannelConfig{Enabled: true, Token: "t"}

	report, err := ValidateStartup(cfg)
	if err != nil {
		t.Fatalf("expected no hard error, got %v", err)
	}
	if report == nil || len(report.Warnings) == 0 {
		t.Fatalf("expected warning for empty telegram allowed_chat_ids")
	}
}

func TestValidateStartup_AccumulatesAllErrors(t *testing.T) {
	cfg := validTestConfig()
	cfg.Chat.MaxIterations = 0
	cfg.Tools.Enabled = nil
	cfg.Channels["telegram"] = ChannelConfig{Enabled: true}

	_, err := ValidateStartup(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"max_iterations", "at least one tool", "token is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected joined error to mention %q, got %v", want, err)
		}
	}
}
