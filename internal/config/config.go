// Package config loads millwright runtime configuration from a TOML file and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const defaultPlant = "default"

const (
	// ProviderAnthropic routes chat turns through the Anthropic Messages API.
	ProviderAnthropic = "anthropic"
	// ProviderOpenAI routes chat turns through an OpenAI-style chat completions endpoint.
	ProviderOpenAI = "openai"
	// ProviderGemini routes chat turns through the Gemini generateContent API.
	ProviderGemini = "gemini"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from MILLWRIGHT_HOME and not read from config.
	HomeDir string `mapstructure:"-"`
	// Plant is the active plant profile (MVP default: "default"), not read from config.
	Plant    string                    `mapstructure:"-"`
	Chat     ChatConfig                `mapstructure:"chat"`
	LLM      map[string]ProviderConfig `mapstructure:"llm"`
	Tools    ToolsConfig               `mapstructure:"tools"`
	Channels map[string]ChannelConfig  `mapstructure:"channels"`
	Costs    CostsConfig               `mapstructure:"costs"`
}

// ChatConfig controls provider selection and the orchestration loop.
type ChatConfig struct {
	// Providers is the provider preference order for each chat turn.
	Providers       []string      `mapstructure:"providers"`
	MaxIterations   int           `mapstructure:"max_iterations"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`
	SystemPrompt    string        `mapstructure:"system_prompt"`
}

// ProviderConfig configures one LLM provider backend.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	// BaseURL overrides the default endpoint, for self-hosted or gateway deployments.
	BaseURL string `mapstructure:"base_url"`
}

// ToolsConfig names the tools exposed to the model.
type ToolsConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// ChannelConfig configures one inbound/outbound channel.
type ChannelConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Token          string  `mapstructure:"token"`
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
}

// CostsConfig defines soft USD spending limits.
type CostsConfig struct {
	DailyLimit   float64 `mapstructure:"daily_limit"`
	MonthlyLimit float64 `mapstructure:"monthly_limit"`
}

// DefaultToolNames is the built-in tool surface, in registry order.
var DefaultToolNames = []string{
	"analyze_sensor_trend",
	"get_all_equipment",
	"get_equipment_details",
	"get_sensor_readings",
	"search_documents",
}

var defaultConfig = Config{
	Chat: ChatConfig{
		Providers:       []string{ProviderAnthropic},
		MaxIterations:   10,
		RequestTimeout:  60 * time.Second,
		AvailabilityTTL: 30 * time.Second,
	},
	LLM: map[string]ProviderConfig{
		ProviderAnthropic: {
			Model:     "claude-sonnet-4-6",
			MaxTokens: 8192,
		},
		ProviderOpenAI: {
			Model:     "gpt-4o-mini",
			MaxTokens: 8192,
		},
		ProviderGemini: {
			Model:     "gemini-2.0-flash",
			MaxTokens: 8192,
		},
	},
	Tools: ToolsConfig{
		Enabled: DefaultToolNames,
	},
	Channels: map[string]ChannelConfig{
		"telegram": {
			Enabled: false,
			Token:   "",
		},
	},
	Costs: CostsConfig{
		DailyLimit:   0,
		MonthlyLimit: 0,
	},
}

// defaultUserConfig is the minimal bootstrap config written for first-time
// users. It intentionally contains only user-editable essentials and not the
// full runtime default surface.
var defaultUserConfig = Config{
	Chat: ChatConfig{
		Providers:      []string{ProviderAnthropic},
		RequestTimeout: 60 * time.Second,
	},
	LLM: map[string]ProviderConfig{
		ProviderAnthropic: {
			APIKey: "$ANTHROPIC_API_KEY",
			Model:  "claude-sonnet-4-6",
		},
	},
	Channels: map[string]ChannelConfig{
		"telegram": {
			Enabled: false,
			Token:   "",
		},
	},
	Costs: CostsConfig{
		DailyLimit:   0,
		MonthlyLimit: 0,
	},
}

// HomeDir returns the millwright home directory.
// Uses MILLWRIGHT_HOME env var if set, otherwise defaults to ~/.millwright.
func HomeDir() (string, error) {
	if dir := os.Getenv("MILLWRIGHT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// The runtime data directory is MILLWRIGHT_HOME/data (default: ~/.millwright/data).
// Config is always at $MILLWRIGHT_HOME/config.toml.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir
	cfg.Plant = defaultPlant

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("chat.request_timeout", v.GetDuration("chat.request_timeout").String())
	v.Set("chat.availability_ttl", v.GetDuration("chat.availability_ttl").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("chat.providers", defaultUserConfig.Chat.Providers)
	v.Set("chat.request_timeout", defaultUserConfig.Chat.RequestTimeout.String())
	for name, llm := range defaultUserConfig.LLM {
		v.Set("llm."+name+".api_key", llm.APIKey)
		v.Set("llm."+name+".model", llm.Model)
	}
	for channel, ch := range defaultUserConfig.Channels {
		v.Set("channels."+channel+".enabled", ch.Enabled)
		v.Set("channels."+channel+".token", ch.Token)
	}
	v.Set("costs.daily_limit", defaultUserConfig.Costs.DailyLimit)
	v.Set("costs.monthly_limit", defaultUserConfig.Costs.MonthlyLimit)

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chat.providers", defaultConfig.Chat.Providers)
	v.SetDefault("chat.max_iterations", defaultConfig.Chat.MaxIterations)
	v.SetDefault("chat.request_timeout", defaultConfig.Chat.RequestTimeout)
	v.SetDefault("chat.availability_ttl", defaultConfig.Chat.AvailabilityTTL)
	v.SetDefault("chat.system_prompt", defaultConfig.Chat.SystemPrompt)

	for name, llm := range defaultConfig.LLM {
		v.SetDefault("llm."+name+".api_key", llm.APIKey)
		v.SetDefault("llm."+name+".model", llm.Model)
		v.SetDefault("llm."+name+".max_tokens", llm.MaxTokens)
		v.SetDefault("llm."+name+".base_url", llm.BaseURL)
	}

	v.SetDefault("tools.enabled", defaultConfig.Tools.Enabled)

	v.SetDefault("channels.telegram.enabled", defaultConfig.Channels["telegram"].Enabled)
	v.SetDefault("channels.telegram.token", defaultConfig.Channels["telegram"].Token)
	v.SetDefault("channels.telegram.allowed_chat_ids", defaultConfig.Channels["telegram"].AllowedChatIDs)

	v.SetDefault("costs.daily_limit", defaultConfig.Costs.DailyLimit)
	v.SetDefault("costs.monthly_limit", defaultConfig.Costs.MonthlyLimit)
}

// Provider returns the named LLM backend config with fallback defaults.
func (c *Config) Provider(name string) ProviderConfig {
	if llm, ok := c.LLM[name]; ok {
		return llm
	}
	return defaultConfig.LLM[name]
}

// TelegramChannel returns Telegram channel config with fallback defaults.
func (c *Config) TelegramChannel() ChannelConfig {
	if ch, ok := c.Channels["telegram"]; ok {
		return ch
	}
	return defaultConfig.Channels["telegram"]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
