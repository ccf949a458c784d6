package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModelClaude = "claude"
	ModelGemini = "gemini"
	ModelOpenAI = "openai"
	ModelGrok   = "grok"
	ModelOllama = "ollama"
)

// apiKeyEnv maps a model identifier to the environment variable holding its credential.
// Ollama runs locally and needs none.
var apiKeyEnv = map[string]string{
	ModelClaude: "ANTHROPIC_API_KEY",
	ModelGemini: "GEMINI_API_KEY",
	ModelOpenAI: "OPENAI_API_KEY",
	ModelGrok:   "GROK_API_KEY",
}

// Config holds application configuration
type Config struct {
	Debug     bool                      `mapstructure:"debug"`
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
	Ledger    LedgerConfig              `mapstructure:"ledger"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // deadline handed to the provider call
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Dir    string `mapstructure:"dir"`
	Stderr bool   `mapstructure:"stderr"` // mirror log lines to stderr (serve mode)
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ChatConfig struct {
	DefaultModel string `mapstructure:"default_model"`
	ServerURL    string `mapstructure:"server_url"`
	ExportDir    string `mapstructure:"export_dir"`
}

// ProviderConfig overrides the upstream model name and endpoint of one backend.
type ProviderConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

var defaultProviders = map[string]ProviderConfig{
	ModelClaude: {Model: "claude-3-5-sonnet-20241022", BaseURL: "https://api.anthropic.com"},
	ModelGemini: {Model: "gemini-1.5-flash"},
	ModelOpenAI: {Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
	ModelGrok:   {Model: "grok-2-latest", BaseURL: "https://api.x.ai"},
	ModelOllama: {Model: "llama3:latest", BaseURL: "http://localhost:11434"},
}

// KnownModels returns the supported model identifiers, sorted.
func KnownModels() []string {
	out := make([]string, 0, len(defaultProviders))
	for name := range defaultProviders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsKnownModel reports whether name is a supported model identifier.
func IsKnownModel(name string) bool {
	_, ok := defaultProviders[name]
	return ok
}

// APIKeyEnv returns the credential variable for a model, or "" when none is needed.
func APIKeyEnv(model string) string {
	return apiKeyEnv[model]
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	providers := make(map[string]ProviderConfig, len(defaultProviders))
	for k, v := range defaultProviders {
		providers[k] = v
	}
	return &Config{
		Server: ServerConfig{
			Addr:           ":5000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   90 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Log:       LogConfig{Level: "info", Dir: "logs"},
		Telemetry: TelemetryConfig{Enabled: true},
		Ledger:    LedgerConfig{Enabled: true, Path: "chatbot.db"},
		Chat: ChatConfig{
			DefaultModel: ModelClaude,
			ServerURL:    "http://localhost:5000",
			ExportDir:    ".",
		},
		Providers: providers,
	}
}

// Load reads configuration from defaults, an optional file and EXTRACHAT_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("EXTRACHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("extrachat")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.fillProviders()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("debug", d.Debug)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.stderr", d.Log.Stderr)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("chat.default_model", d.Chat.DefaultModel)
	v.SetDefault("chat.server_url", d.Chat.ServerURL)
	v.SetDefault("chat.export_dir", d.Chat.ExportDir)
	for name, p := range d.Providers {
		v.SetDefault("providers."+name+".model", p.Model)
		v.SetDefault("providers."+name+".base_url", p.BaseURL)
	}
}

// fillProviders restores defaults for providers a config file only partially overrides.
func (c *Config) fillProviders() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig, len(defaultProviders))
	}
	for name, def := range defaultProviders {
		p := c.Providers[name]
		if p.Model == "" {
			p.Model = def.Model
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		c.Providers[name] = p
	}
}

// Provider returns the settings for one backend.
func (c *Config) Provider(name string) ProviderConfig {
	if p, ok := c.Providers[name]; ok {
		return p
	}
	return defaultProviders[name]
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("invalid server.request_timeout: %s", c.Server.RequestTimeout)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if !IsKnownModel(c.Chat.DefaultModel) {
		return fmt.Errorf("unknown chat.default_model: %s (supported: %s)",
			c.Chat.DefaultModel, strings.Join(KnownModels(), ", "))
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required when the ledger is enabled")
	}
	return nil
}
