package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	OpenCage  OpenCageConfig  `yaml:"opencage" mapstructure:"opencage"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the on-disk data directory.
type StoreConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// TavilyConfig holds Tavily search API settings.
type TavilyConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults  int    `yaml:"max_results" mapstructure:"max_results"`
	SearchDepth string `yaml:"search_depth" mapstructure:"search_depth"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// OpenCageConfig holds OpenCage geocoding API settings.
type OpenCageConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	RateRPS  float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	Language string  `yaml:"language" mapstructure:"language"`
}

// GeoConfig scopes geocoding to the monitored city.
type GeoConfig struct {
	City    string `yaml:"city" mapstructure:"city"`
	Country string `yaml:"country" mapstructure:"country"`
}

// FetchConfig configures article fetching.
type FetchConfig struct {
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinContentChars int `yaml:"min_content_chars" mapstructure:"min_content_chars"`
}

// PipelineConfig configures the run itself.
type PipelineConfig struct {
	SearchQuery string `yaml:"search_query" mapstructure:"search_query"`
}

// SchedulerConfig configures the periodic trigger.
type SchedulerConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	BackoffSecs  int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
}

// ServerConfig configures the dashboard API server.
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
	v.SetEnvPrefix("CENTINELA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so AutomaticEnv can
	// surface them; viper only reads env vars for known keys.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("tavily.key", "")
	v.SetDefault("opencage.key", "")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.max_results", 5)
	v.SetDefault("tavily.search_depth", "advanced")
	v.SetDefault("tavily.retries", 1)
	v.SetDefault("opencage.base_url", "https://api.opencagedata.com/geocode/v1/json")
	v.SetDefault("opencage.rate_rps", 1.0)
	v.SetDefault("opencage.language", "es")
	v.SetDefault("geo.city", "Querétaro")
	v.SetDefault("geo.country", "México")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.min_content_chars", 100)
	v.SetDefault("pipeline.search_query", "noticias recientes policía Querétaro últimas 24 horas seguridad")
	v.SetDefault("scheduler.interval_secs", 600)
	v.SetDefault("scheduler.backoff_secs", 60)

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

// Validate checks the credentials the pipeline cannot run without.
// A missing key fails the run immediately; the scheduler backs off and
// retries on its next cycle.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required")
	}
	if c.Tavily.Key == "" {
		return eris.New("config: tavily.key is required")
	}
	if c.OpenCage.Key == "" {
		return eris.New("config: opencage.key is required")
	}
	return nil
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
