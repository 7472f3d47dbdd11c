// Package oracle caches provider readings per location and refreshes them on
// a fixed schedule. The cache is advisory; payout eligibility is driven by the
// telemetry tracker.
package oracle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/model"
)

const (
	// MinUpdateIntervalSecs is the smallest accepted sweep interval.
	MinUpdateIntervalSecs = 60
	// DefaultUpdateIntervalSecs is the sweep interval at startup.
	DefaultUpdateIntervalSecs = 300
	// DefaultMaxRetries is advisory; sweeps never retry within a tick.
	DefaultMaxRetries = 3
	// DefaultBaseURL is the instantaneous-values endpoint.
	DefaultBaseURL = "https://waterservices.usgs.gov/nwis/iv/"

	defaultBatchConcurrency = 4
)

// Fetcher retrieves a reading for a location.
type Fetcher interface {
	FetchFloodData(ctx context.Context, baseURL, location string) (model.FloodData, error)
}

// BudgetMeter reports the total budget charged for provider calls.
type BudgetMeter interface {
	Charged() uint64
}

// DefaultConfig returns the startup configuration.
func DefaultConfig() model.OracleConfig {
	return model.OracleConfig{
		UpdateIntervalSecs:   DefaultUpdateIntervalSecs,
		MaxRetries:           DefaultMaxRetries,
		AuthorizedPrincipals: []model.Principal{},
		BaseURL:              DefaultBaseURL,
	}
}

// Options configures an Oracle.
type Options struct {
	Config           model.OracleConfig
	Fetcher          Fetcher
	Meter            BudgetMeter
	BatchConcurrency int
	NewTicker        TickerFactory
	Clock            func() time.Time
}

// BatchResult is the outcome for one location of a batch update.
type BatchResult struct {
	Location string           `json:"location"`
	Data     *model.FloodData `json:"data,omitempty"`
	Err      error            `json:"-"`
}

// State is the persisted form of the oracle.
type State struct {
	Config model.OracleConfig
	Cache  map[string]model.CachedData
	Stats  model.OracleStats
}

// Oracle owns the ingestion cache, its stats, its configuration and the sweep
// scheduler.
type Oracle struct {
	mu         sync.RWMutex
	guard      *auth.Guard
	cfg        model.OracleConfig
	principals *auth.AllowSet
	cache      map[string]model.CachedData
	stats      model.OracleStats

	fetcher     Fetcher
	meter       BudgetMeter
	sched       *Scheduler
	concurrency int
	now         func() time.Time
	log         *zap.Logger
}

// New creates an oracle. The sweep timer is not started until Start.
func New(guard *auth.Guard, opts Options) *Oracle {
	cfg := opts.Config.Clone()
	if cfg.UpdateIntervalSecs < MinUpdateIntervalSecs {
		cfg.UpdateIntervalSecs = MinUpdateIntervalSecs
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = defaultBatchConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	o := &Oracle{
		guard:       guard,
		cfg:         cfg,
		principals:  auth.NewAllowSet(cfg.AuthorizedPrincipals...),
		cache:       make(map[string]model.CachedData),
		fetcher:     opts.Fetcher,
		meter:       opts.Meter,
		concurrency: opts.BatchConcurrency,
		now:         opts.Clock,
		log:         zap.L().With(zap.String("component", "oracle")),
	}
	o.sched = NewScheduler(o.Sweep, opts.NewTicker)
	return o
}

// Start binds sweeps to ctx and starts the timer unless paused.
func (o *Oracle) Start(ctx context.Context) {
	o.sched.Attach(ctx)
	o.Resume()
}

// Resume starts the timer at the configured interval unless paused.
func (o *Oracle) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.restartLocked()
}

// Stop cancels the sweep timer.
func (o *Oracle) Stop() {
	o.sched.Stop()
}

// TimerRunning reports whether periodic sweeps are scheduled.
func (o *Oracle) TimerRunning() bool {
	return o.sched.Running()
}

func (o *Oracle) restartLocked() {
	if o.cfg.IsPaused {
		o.sched.Stop()
		return
	}
	interval := time.Duration(o.cfg.UpdateIntervalSecs) * time.Second
	o.sched.Start(interval)
	o.log.Info("update timer started", zap.Uint64("interval_seconds", o.cfg.UpdateIntervalSecs))
}

// FetchAndCache fetches one location, overwrites its cache entry and returns
// the reading it stored. The pause flag and base URL are read before the
// provider call and not re-checked after it; the write is a plain overwrite.
func (o *Oracle) FetchAndCache(ctx context.Context, location string) (model.FloodData, error) {
	o.mu.RLock()
	paused, baseURL := o.cfg.IsPaused, o.cfg.BaseURL
	o.mu.RUnlock()

	if paused {
		return model.FloodData{}, model.Paused("oracle is paused")
	}

	data, err := o.fetcher.FetchFloodData(ctx, baseURL, location)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.stats.FailedFetches++
		o.stats.LastError = err.Error()
		return model.FloodData{}, err
	}

	now := o.now().UTC()
	o.cache[location] = model.CachedData{Data: data, CachedAt: now}
	o.stats.TotalUpdates++
	o.stats.SuccessfulFetches++
	o.stats.LastUpdate = &now
	o.stats.LastError = ""

	o.log.Info("cached reading",
		zap.String("location", location),
		zap.Float64("water_level_feet", data.WaterLevelFeet),
	)
	return data, nil
}

// Sweep refreshes every cached location once, in order. Failures are recorded
// in stats by FetchAndCache and the sweep moves on; a pause ends it early.
func (o *Oracle) Sweep(ctx context.Context) {
	for _, loc := range o.CachedLocations() {
		_, err := o.FetchAndCache(ctx, loc)
		if err == nil {
			continue
		}
		if errors.Is(err, model.ErrPaused) {
			o.log.Info("sweep stopped: oracle paused")
			return
		}
		o.log.Warn("failed to update location",
			zap.String("location", loc),
			zap.Error(err),
		)
	}
}

// ManualUpdate fetches location for an authorized caller and returns the new
// reading. A previously unseen location joins future sweeps.
func (o *Oracle) ManualUpdate(ctx context.Context, caller model.Principal, location string) (model.FloodData, error) {
	if err := o.requireAuthorized(caller); err != nil {
		return model.FloodData{}, err
	}
	return o.FetchAndCache(ctx, location)
}

// BatchUpdate updates each location and reports per-location results in input
// order. An unauthorized caller gets the same error for every location and no
// fetch is attempted.
func (o *Oracle) BatchUpdate(ctx context.Context, caller model.Principal, locations []string) []BatchResult {
	results := make([]BatchResult, len(locations))
	if err := o.requireAuthorized(caller); err != nil {
		for i, loc := range locations {
			results[i] = BatchResult{Location: loc, Err: err}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, loc := range locations {
		g.Go(func() error {
			data, err := o.FetchAndCache(ctx, loc)
			if err != nil {
				results[i] = BatchResult{Location: loc, Err: err}
				return nil
			}
			results[i] = BatchResult{Location: loc, Data: &data}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// LatestData returns the cached reading for location.
func (o *Oracle) LatestData(location string) (model.FloodData, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.cache[location]
	if !ok {
		return model.FloodData{}, model.NotFound("no data available for location: %s", location)
	}
	return c.Data, nil
}

// CachedData returns the cache entry for location.
func (o *Oracle) CachedData(location string) (model.CachedData, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.cache[location]
	return c, ok
}

// CachedLocations returns cached keys in sorted order.
func (o *Oracle) CachedLocations() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.locationsLocked()
}

func (o *Oracle) locationsLocked() []string {
	out := make([]string, 0, len(o.cache))
	for k := range o.cache {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats returns the fetch counters.
func (o *Oracle) Stats() model.OracleStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}

// Status aggregates counters and configuration.
func (o *Oracle) Status() model.OracleStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := model.OracleStatus{
		TotalUpdates:       o.stats.TotalUpdates,
		SuccessfulFetches:  o.stats.SuccessfulFetches,
		FailedFetches:      o.stats.FailedFetches,
		LastUpdate:         o.stats.LastUpdate,
		LastError:          o.stats.LastError,
		CachedLocations:    o.locationsLocked(),
		IsPaused:           o.cfg.IsPaused,
		UpdateIntervalSecs: o.cfg.UpdateIntervalSecs,
	}
	if o.meter != nil {
		st.CyclesCharged = o.meter.Charged()
	}
	return st
}

// Configuration returns the current configuration.
func (o *Oracle) Configuration() model.OracleConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.configLocked()
}

func (o *Oracle) configLocked() model.OracleConfig {
	cfg := o.cfg.Clone()
	cfg.AuthorizedPrincipals = o.principals.Members()
	return cfg
}

// UpdateConfiguration replaces the configuration wholesale and restarts the
// timer at the new interval.
func (o *Oracle) UpdateConfiguration(caller model.Principal, cfg model.OracleConfig) error {
	if err := o.requireAuthorized(caller); err != nil {
		return err
	}
	if cfg.UpdateIntervalSecs < MinUpdateIntervalSecs {
		return model.Validation("update interval must be at least %d seconds", MinUpdateIntervalSecs)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg.Clone()
	o.principals.Replace(cfg.AuthorizedPrincipals)
	o.restartLocked()

	o.log.Info("configuration updated",
		zap.Uint64("interval_seconds", cfg.UpdateIntervalSecs),
		zap.Bool("paused", cfg.IsPaused),
	)
	return nil
}

// SetPaused pauses or resumes ingestion. Pausing cancels the timer and makes
// fetches fail with Paused; resuming restarts the timer at the configured
// interval.
func (o *Oracle) SetPaused(caller model.Principal, paused bool) error {
	if err := o.requireAuthorized(caller); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.IsPaused = paused
	o.restartLocked()

	if paused {
		o.log.Info("oracle paused")
	} else {
		o.log.Info("oracle unpaused")
	}
	return nil
}

// AddAuthorizedPrincipal grants ingestion management to p.
func (o *Oracle) AddAuthorizedPrincipal(caller, p model.Principal) error {
	if err := o.requireAuthorized(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.principals.Add(p) {
		o.log.Info("principal added to authorized list", zap.String("principal", string(p)))
	}
	return nil
}

// RemoveAuthorizedPrincipal revokes p. Absent principals are ignored.
func (o *Oracle) RemoveAuthorizedPrincipal(caller, p model.Principal) error {
	if err := o.requireAuthorized(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.principals.Remove(p) {
		o.log.Info("principal removed from authorized list", zap.String("principal", string(p)))
	}
	return nil
}

// ClearCache drops every cache entry and returns how many were removed.
func (o *Oracle) ClearCache(caller model.Principal) (int, error) {
	if err := o.requireAuthorized(caller); err != nil {
		return 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.cache)
	o.cache = make(map[string]model.CachedData)
	o.log.Info("cache cleared", zap.Int("entries", n))
	return n, nil
}

// State exports the oracle for persistence.
func (o *Oracle) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cache := make(map[string]model.CachedData, len(o.cache))
	for k, v := range o.cache {
		cache[k] = v
	}
	return State{Config: o.configLocked(), Cache: cache, Stats: o.stats}
}

// Load replaces configuration, cache and stats. The timer is left alone.
func (o *Oracle) Load(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = s.Config.Clone()
	o.principals.Replace(s.Config.AuthorizedPrincipals)
	o.cache = make(map[string]model.CachedData, len(s.Cache))
	for k, v := range s.Cache {
		o.cache[k] = v
	}
	o.stats = s.Stats
}

func (o *Oracle) requireAuthorized(caller model.Principal) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.guard.RequireAuthorized(caller, o.principals)
}
