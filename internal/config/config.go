// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verdantly/proposal-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ProviderConfig selects and tunes the AI provider.
type ProviderConfig struct {
	Driver            string          `yaml:"driver" mapstructure:"driver"` // "openai" or "anthropic"
	MaxAttempts       int             `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoffMS     int             `yaml:"base_backoff_ms" mapstructure:"base_backoff_ms"`
	MinCooldownSecs   int             `yaml:"min_cooldown_secs" mapstructure:"min_cooldown_secs"`
	RequestsPerMinute float64         `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxTokens         int             `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64         `yaml:"temperature" mapstructure:"temperature"`
	OpenAI            OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic         AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-compatible endpoint settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures the verification retry loop.
type PipelineConfig struct {
	MaxRounds int `yaml:"max_rounds" mapstructure:"max_rounds"`
	// BatchConcurrency bounds concurrent generations in batch mode.
	BatchConcurrency int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPOSAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "proposals.db")
	v.SetDefault("provider.driver", "openai")
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.base_backoff_ms", 2000)
	v.SetDefault("provider.min_cooldown_secs", 15)
	v.SetDefault("provider.requests_per_minute", 0)
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.temperature", 0.2)
	v.SetDefault("provider.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.openai.model", "gpt-4o-mini")
	v.SetDefault("provider.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("pipeline.max_rounds", 3)
	v.SetDefault("pipeline.batch_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
