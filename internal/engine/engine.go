// Package engine wires every settlement component behind one context and
// owns the save/restore lifecycle.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/events"
	"github.com/sells-group/floodcover/internal/mirror"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/oracle"
	"github.com/sells-group/floodcover/internal/policy"
	"github.com/sells-group/floodcover/internal/snapshot"
	"github.com/sells-group/floodcover/internal/telemetry"
)

// Options configures New.
type Options struct {
	// Admin is the starting identity. It becomes admin, an oracle updater and
	// an authorized oracle principal.
	Admin model.Principal
	// Controllers are always authorized on the oracle side. Not persisted.
	Controllers []model.Principal
	// DefaultThreshold applies until a snapshot is restored. Invalid values
	// fall back to telemetry.DefaultThresholdFeet.
	DefaultThreshold float64
	// OracleUpdaters are added after Admin.
	OracleUpdaters []model.Principal
	Oracle         oracle.Options
	// Store may be nil, in which case SaveState and RestoreState fail.
	Store snapshot.Store
	// KeepSnapshots prunes older rows after each save when positive.
	KeepSnapshots int
	Publisher     events.Publisher
	Clock         func() time.Time
}

// Engine is the top-level context. Components are exported for the API layer;
// each guards its own state.
type Engine struct {
	Guard     *auth.Guard
	Telemetry *telemetry.Tracker
	Policies  *policy.Machine
	Mirror    *mirror.Ledger
	Oracle    *oracle.Oracle

	store snapshot.Store
	keep  int
	pub   events.Publisher
	log   *zap.Logger
}

// New builds an engine in its process-start state.
func New(opts Options) (*Engine, error) {
	if opts.Admin == "" || opts.Admin.IsAnonymous() {
		return nil, eris.New("engine: admin identity is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	guard := auth.NewGuard(opts.Admin, opts.Controllers...)

	updaters := append([]model.Principal{opts.Admin}, opts.OracleUpdaters...)
	tracker := telemetry.NewTracker(guard, opts.DefaultThreshold, updaters, opts.Publisher)

	machine := policy.NewMachine(guard, tracker,
		policy.WithClock(opts.Clock),
		policy.WithPublisher(opts.Publisher),
	)

	oracleOpts := opts.Oracle
	oracleOpts.Config = oracleOpts.Config.Clone()
	oracleOpts.Config.AuthorizedPrincipals = append([]model.Principal{opts.Admin}, oracleOpts.Config.AuthorizedPrincipals...)
	if oracleOpts.Clock == nil {
		oracleOpts.Clock = opts.Clock
	}

	return &Engine{
		Guard:     guard,
		Telemetry: tracker,
		Policies:  machine,
		Mirror:    mirror.NewLedger(guard),
		Oracle:    oracle.New(guard, oracleOpts),
		store:     opts.Store,
		keep:      opts.KeepSnapshots,
		pub:       opts.Publisher,
		log:       zap.L().With(zap.String("component", "engine")),
	}, nil
}

// Start binds periodic sweeps to ctx and starts them unless paused.
func (e *Engine) Start(ctx context.Context) {
	e.Oracle.Start(ctx)
}

// Snapshot exports every component.
func (e *Engine) Snapshot() snapshot.State {
	ps := e.Policies.State()
	ts := e.Telemetry.State()
	ors := e.Oracle.State()
	return snapshot.State{
		Policies:       ps.Policies,
		PolicyCounter:  ps.Counter,
		HolderIndex:    ps.HolderIndex,
		FloodLevel:     ts.FloodLevel,
		FloodThreshold: ts.FloodThreshold,
		Admin:          e.Guard.Admin(),
		OracleUpdaters: ts.OracleUpdaters,
		OracleConfig:   ors.Config,
		OracleCache:    ors.Cache,
		OracleStats:    ors.Stats,
		Mirror:         e.Mirror.Policies(),
	}
}

// Apply replaces every component with s. The sweep timer is not touched.
func (e *Engine) Apply(s snapshot.State) {
	if s.Admin != "" {
		e.Guard.SetAdmin(s.Admin)
	}
	e.Policies.Load(policy.State{
		Policies:    s.Policies,
		Counter:     s.PolicyCounter,
		HolderIndex: s.HolderIndex,
	})
	e.Telemetry.Load(telemetry.State{
		FloodLevel:     s.FloodLevel,
		FloodThreshold: s.FloodThreshold,
		OracleUpdaters: s.OracleUpdaters,
	})
	e.Oracle.Load(oracle.State{
		Config: s.OracleConfig,
		Cache:  s.OracleCache,
		Stats:  s.OracleStats,
	})
	e.Mirror.Load(s.Mirror)
}

// SaveState stops periodic sweeps and persists every component in the
// current schema. It is the about-to-be-replaced hook; the engine should not
// serve further mutations afterwards.
func (e *Engine) SaveState(ctx context.Context) (snapshot.Record, error) {
	if e.store == nil {
		return snapshot.Record{}, eris.New("engine: no snapshot store configured")
	}
	e.Oracle.Stop()

	payload, err := snapshot.Encode(e.Snapshot())
	if err != nil {
		return snapshot.Record{}, eris.Wrap(err, "engine: save state")
	}
	rec, err := e.store.Save(ctx, snapshot.CurrentVersion, payload)
	if err != nil {
		return snapshot.Record{}, eris.Wrap(err, "engine: save state")
	}
	e.log.Info("state saved",
		zap.String("snapshot_id", rec.ID),
		zap.Int("bytes", len(payload)),
	)

	if e.keep > 0 {
		n, err := e.store.Prune(ctx, e.keep)
		if err != nil {
			e.log.Warn("snapshot prune failed", zap.Error(err))
		} else if n > 0 {
			e.log.Debug("snapshots pruned", zap.Int64("removed", n))
		}
	}
	return rec, nil
}

// RestoreState loads the newest snapshot, applies it and restarts periodic
// sweeps unless the restored configuration is paused. It is the just-replaced
// hook. It reports false when the store is empty, leaving the start state.
func (e *Engine) RestoreState(ctx context.Context) (bool, error) {
	if e.store == nil {
		return false, eris.New("engine: no snapshot store configured")
	}
	rec, err := e.store.Latest(ctx)
	if err != nil {
		return false, eris.Wrap(err, "engine: restore state")
	}
	if rec == nil {
		e.log.Info("no saved state, starting fresh")
		return false, nil
	}

	s, version, err := snapshot.Decode(rec.Payload)
	if err != nil {
		return false, eris.Wrapf(err, "engine: restore state %s", rec.ID)
	}
	e.Apply(s)
	e.Oracle.Resume()

	e.log.Info("state restored",
		zap.String("snapshot_id", rec.ID),
		zap.Int("schema_version", version),
		zap.Int("policies", len(s.Policies)),
		zap.Int("cached_locations", len(s.OracleCache)),
	)
	return true, nil
}

// Close stops sweeps and releases the publisher and store.
func (e *Engine) Close() {
	e.Oracle.Stop()
	e.pub.Close()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn("close snapshot store", zap.Error(err))
		}
	}
}
