package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/engine"
	"github.com/sells-group/floodcover/internal/events"
	"github.com/sells-group/floodcover/internal/fetcher"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/monitoring"
	"github.com/sells-group/floodcover/internal/oracle"
	"github.com/sells-group/floodcover/internal/resilience"
	"github.com/sells-group/floodcover/internal/snapshot"
)

// engineEnv holds the engine and the pieces serve wires around it.
type engineEnv struct {
	Engine    *engine.Engine
	Fetcher   *fetcher.TelemetryFetcher
	Collector *monitoring.Collector
	Metrics   *monitoring.Metrics
	Checker   *monitoring.Checker
}

// Close stops sweeps and releases the publisher and store.
func (e *engineEnv) Close() {
	if e.Engine != nil {
		e.Engine.Close()
	}
}

// initEngine validates config, opens the store and builds the engine in its
// process-start state. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate("serve"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := initPublisher(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tf := initFetcher()
	eng, err := engine.New(engine.Options{
		Admin:            model.Principal(cfg.Engine.Admin),
		Controllers:      principals(cfg.Oracle.Controllers),
		DefaultThreshold: cfg.Engine.DefaultThresholdFeet,
		OracleUpdaters:   principals(cfg.Engine.OracleUpdaters),
		Oracle: oracle.Options{
			Config:           oracleConfig(),
			Fetcher:          tf,
			Meter:            tf.Meter(),
			BatchConcurrency: cfg.Oracle.BatchConcurrency,
		},
		Store:         st,
		KeepSnapshots: cfg.Store.KeepSnapshots,
		Publisher:     pub,
	})
	if err != nil {
		pub.Close()
		_ = st.Close()
		return nil, err
	}

	collector := monitoring.NewCollector(eng.Policies, eng.Telemetry, eng.Oracle,
		monitoring.WithMirror(eng.Mirror),
		monitoring.WithBreaker(tf.Breaker()),
	)

	return &engineEnv{
		Engine:    eng,
		Fetcher:   tf,
		Collector: collector,
		Metrics:   monitoring.NewMetrics(collector),
		Checker:   monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring),
	}, nil
}

// initStore opens and migrates the configured snapshot backend.
func initStore(ctx context.Context) (snapshot.Store, error) {
	var (
		st  snapshot.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "floodcover.db"
		}
		st, err = snapshot.NewSQLite(dsn)
	case "postgres":
		st, err = snapshot.NewPostgres(ctx, cfg.Store.DatabaseURL, &snapshot.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initFetcher builds the rate-limited provider client behind a circuit breaker.
func initFetcher() *fetcher.TelemetryFetcher {
	httpf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Oracle.UserAgent,
		Timeout:    time.Duration(cfg.Oracle.RequestTimeoutSecs) * time.Second,
		RatePerSec: cfg.Oracle.RateLimitPerSec,
		Burst:      1,
	})
	cb := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.Oracle.BreakerFailures, cfg.Oracle.BreakerResetSecs))
	return fetcher.NewTelemetryFetcher(httpf, fetcher.WithBreaker(cb))
}

// initPublisher connects to the event broker, or returns a no-op publisher
// when none is configured.
func initPublisher(ctx context.Context) (events.Publisher, error) {
	if cfg.Events.BrokerURL == "" {
		zap.L().Debug("events: no broker configured, publishing disabled")
		return events.Nop{}, nil
	}
	pub, err := events.ConnectMQTT(ctx, events.MQTTConfig{
		BrokerURL:   cfg.Events.BrokerURL,
		ClientID:    cfg.Events.ClientID,
		Username:    cfg.Events.Username,
		Password:    cfg.Events.Password,
		TopicPrefix: cfg.Events.TopicPrefix,
		MaxRetries:  cfg.Events.ConnectRetries,
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func oracleConfig() model.OracleConfig {
	oc := oracle.DefaultConfig()
	if cfg.Oracle.BaseURL != "" {
		oc.BaseURL = cfg.Oracle.BaseURL
	}
	if cfg.Oracle.UpdateIntervalSecs > 0 {
		oc.UpdateIntervalSecs = uint64(cfg.Oracle.UpdateIntervalSecs)
	}
	if cfg.Oracle.MaxRetries > 0 {
		oc.MaxRetries = uint32(cfg.Oracle.MaxRetries)
	}
	oc.AuthorizedPrincipals = principals(cfg.Oracle.AuthorizedPrincipals)
	return oc
}

func principals(ss []string) []model.Principal {
	out := make([]model.Principal, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, model.Principal(s))
		}
	}
	return out
}
