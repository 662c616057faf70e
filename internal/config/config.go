package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// InferenceConfig configures the language-model providers.
type InferenceConfig struct {
	Provider  string         `yaml:"provider" mapstructure:"provider"`
	Anthropic ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai" mapstructure:"openai"`
}

// ProviderConfig holds one provider's credentials and limits.
type ProviderConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	// AgentTimeoutSecs bounds each individual agent invocation.
	AgentTimeoutSecs int `yaml:"agent_timeout_secs" mapstructure:"agent_timeout_secs"`
	// RunTimeoutSecs bounds a whole pipeline run; agents still in flight at
	// the deadline are recorded as failed with reason run_timeout.
	RunTimeoutSecs int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	// StalenessThresholdMins: without --force, an agent whose latest
	// succeeded extraction is younger than this is skipped. Zero disables
	// skipping (always re-run).
	StalenessThresholdMins int `yaml:"staleness_threshold_mins" mapstructure:"staleness_threshold_mins"`
}

// AgentTimeout returns the per-agent invocation timeout.
func (c PipelineConfig) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSecs) * time.Second
}

// RunTimeout returns the whole-run deadline.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// StalenessThreshold returns the freshness window for skipping re-runs.
func (c PipelineConfig) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessThresholdMins) * time.Minute
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
	v.SetEnvPrefix("DEALSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealsense.db")
	v.SetDefault("inference.provider", "anthropic")
	v.SetDefault("inference.anthropic.rps", 5)
	v.SetDefault("inference.openai.rps", 5)
	v.SetDefault("pipeline.agent_timeout_secs", 30)
	v.SetDefault("pipeline.run_timeout_secs", 120)
	v.SetDefault("pipeline.staleness_threshold_mins", 60)
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
