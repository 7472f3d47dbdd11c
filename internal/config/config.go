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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Oracle     OracleConfig     `yaml:"oracle" mapstructure:"oracle"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the snapshot backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	KeepSnapshots int    `yaml:"keep_snapshots" mapstructure:"keep_snapshots"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns      int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EngineConfig configures the settlement side at process start.
type EngineConfig struct {
	Admin                string   `yaml:"admin" mapstructure:"admin"`
	DefaultThresholdFeet float64  `yaml:"default_threshold_feet" mapstructure:"default_threshold_feet"`
	OracleUpdaters       []string `yaml:"oracle_updaters" mapstructure:"oracle_updaters"`
}

// OracleConfig configures ingestion and the provider client.
type OracleConfig struct {
	BaseURL              string   `yaml:"base_url" mapstructure:"base_url"`
	UpdateIntervalSecs   int      `yaml:"update_interval_secs" mapstructure:"update_interval_secs"`
	MaxRetries           int      `yaml:"max_retries" mapstructure:"max_retries"`
	AuthorizedPrincipals []string `yaml:"authorized_principals" mapstructure:"authorized_principals"`
	Controllers          []string `yaml:"controllers" mapstructure:"controllers"`
	RequestTimeoutSecs   int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RateLimitPerSec      float64  `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	BatchConcurrency     int      `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	BreakerFailures      int      `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs     int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	UserAgent            string   `yaml:"user_agent" mapstructure:"user_agent"`
}

// EventsConfig configures the MQTT event publisher. An empty broker URL
// disables publishing.
type EventsConfig struct {
	BrokerURL      string `yaml:"broker_url" mapstructure:"broker_url"`
	ClientID       string `yaml:"client_id" mapstructure:"client_id"`
	Username       string `yaml:"username" mapstructure:"username"`
	Password       string `yaml:"password" mapstructure:"password"`
	TopicPrefix    string `yaml:"topic_prefix" mapstructure:"topic_prefix"`
	ConnectRetries int    `yaml:"connect_retries" mapstructure:"connect_retries"`
}

// MonitoringConfig configures metrics and alerting.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterSecs       int     `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("FLOODCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "floodcover.db")
	v.SetDefault("store.keep_snapshots", 10)
	v.SetDefault("engine.admin", "")
	v.SetDefault("engine.default_threshold_feet", 12.0)
	v.SetDefault("oracle.base_url", "https://waterservices.usgs.gov/nwis/iv/")
	v.SetDefault("oracle.update_interval_secs", 300)
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.request_timeout_secs", 30)
	v.SetDefault("oracle.rate_limit_per_sec", 2.0)
	v.SetDefault("oracle.batch_concurrency", 4)
	v.SetDefault("oracle.breaker_failures", 5)
	v.SetDefault("oracle.breaker_reset_secs", 60)
	v.SetDefault("oracle.user_agent", "floodcover/1.0")
	v.SetDefault("events.broker_url", "")
	v.SetDefault("events.client_id", "floodcover")
	v.SetDefault("events.topic_prefix", "floodcover")
	v.SetDefault("events.connect_retries", 5)
	v.SetDefault("monitoring.check_interval_secs", 60)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_secs", 1800)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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
