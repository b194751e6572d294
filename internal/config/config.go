// Package config loads buscai-import settings from config.yaml and
// BUSCAI_* environment variables and initialises the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi" mapstructure:"serpapi"`
	Importer   ImporterConfig   `yaml:"importer" mapstructure:"importer"`
	Secrets    SecretsConfig    `yaml:"secrets" mapstructure:"secrets"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SerpAPIConfig configures the listing search client.
type SerpAPIConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// ImporterConfig tunes import runs.
type ImporterConfig struct {
	BatchSize         int  `yaml:"batch_size" mapstructure:"batch_size"`
	DefaultLimit      int  `yaml:"default_limit" mapstructure:"default_limit"`
	ActivateCompanies bool `yaml:"activate_companies" mapstructure:"activate_companies"`
	MaxErrorSamples   int  `yaml:"max_error_samples" mapstructure:"max_error_samples"`
}

// SecretsConfig holds the base64 master key sealing integration secrets.
type SecretsConfig struct {
	MasterKey string `yaml:"master_key" mapstructure:"master_key"`
}

// MonitoringConfig configures import health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled                  bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	RecordErrorRateThreshold float64 `yaml:"record_error_rate_threshold" mapstructure:"record_error_rate_threshold"`
	ConflictBacklogThreshold int     `yaml:"conflict_backlog_threshold" mapstructure:"conflict_backlog_threshold"`
	StuckRunMins             int     `yaml:"stuck_run_mins" mapstructure:"stuck_run_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// working directory for config.yaml; a named file must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BUSCAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("serpapi.api_key", "")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.timeout_secs", 20)
	v.SetDefault("serpapi.rate_limit", 1.0)
	v.SetDefault("serpapi.max_retries", 2)
	v.SetDefault("importer.batch_size", 500)
	v.SetDefault("importer.default_limit", 20)
	v.SetDefault("importer.activate_companies", false)
	v.SetDefault("importer.max_error_samples", 10)
	v.SetDefault("secrets.master_key", "")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.record_error_rate_threshold", 0.1)
	v.SetDefault("monitoring.conflict_backlog_threshold", 500)
	v.SetDefault("monitoring.stuck_run_mins", 30)

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

// Validate checks the settings a command mode needs: "import" (CLI
// commands touching the store) or "serve" (import plus the HTTP server).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "import", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Importer.BatchSize <= 0 {
		errs = append(errs, "importer.batch_size must be > 0")
	}
	if c.Importer.DefaultLimit < 0 {
		errs = append(errs, "importer.default_limit must be >= 0")
	}
	if c.SerpAPI.MaxRetries < 0 {
		errs = append(errs, "serpapi.max_retries must be >= 0")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "serve" && c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
		errs = append(errs, "monitoring.webhook_url is required when monitoring is enabled")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
