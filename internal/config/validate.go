package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: "serve"
// runs the engine and API, "store" only opens the snapshot backend, "fetch"
// only talks to the provider.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateEngine()...)
		errs = append(errs, c.validateOracle()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
		if c.Monitoring.CheckIntervalSecs <= 0 {
			errs = append(errs, "monitoring.check_interval_secs must be > 0")
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	case "fetch":
		errs = append(errs, c.validateOracle()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateEngine() []string {
	var errs []string
	if c.Engine.Admin == "" {
		errs = append(errs, "engine.admin is required")
	}
	if t := c.Engine.DefaultThresholdFeet; t <= 0 || t > 100 {
		errs = append(errs, "engine.default_threshold_feet must be in (0, 100]")
	}
	return errs
}

func (c *Config) validateOracle() []string {
	var errs []string
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle.base_url is required")
	}
	if c.Oracle.UpdateIntervalSecs < 60 {
		errs = append(errs, "oracle.update_interval_secs must be >= 60")
	}
	if c.Oracle.BatchConcurrency < 1 || c.Oracle.BatchConcurrency > 32 {
		errs = append(errs, "oracle.batch_concurrency must be between 1 and 32")
	}
	if c.Oracle.RateLimitPerSec <= 0 {
		errs = append(errs, "oracle.rate_limit_per_sec must be > 0")
	}
	return errs
}
