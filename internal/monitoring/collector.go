package monitoring

import (
	"time"

	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/resilience"
	"github.com/sells-group/floodcover/internal/telemetry"
)

// MetricsSnapshot holds a point-in-time view of engine health.
type MetricsSnapshot struct {
	// Settlement side.
	PoliciesTotal   uint64  `json:"policies_total"`
	PoliciesActive  uint64  `json:"policies_active"`
	PoliciesPaidOut uint64  `json:"policies_paid_out"`
	MirrorTotal     uint64  `json:"mirror_total"`
	FloodLevelFeet  float64 `json:"flood_level_feet"`
	ThresholdFeet   float64 `json:"threshold_feet"`
	ThresholdMet    bool    `json:"threshold_met"`

	// Ingestion side.
	TotalUpdates      uint64     `json:"total_updates"`
	SuccessfulFetches uint64     `json:"successful_fetches"`
	FailedFetches     uint64     `json:"failed_fetches"`
	FetchFailRate     float64    `json:"fetch_fail_rate"`
	CachedLocations   int        `json:"cached_locations"`
	NewestReadingAt   *time.Time `json:"newest_reading_at,omitempty"`
	IsPaused          bool       `json:"is_paused"`
	CyclesCharged     uint64     `json:"cycles_charged"`

	// Provider breaker, when wired.
	BreakerState string `json:"breaker_state,omitempty"`
	BreakerTrips uint64 `json:"breaker_trips"`

	CollectedAt time.Time `json:"collected_at"`
}

// PolicySource supplies policy counts.
type PolicySource interface {
	Stats() model.PolicyStats
}

// LevelSource supplies the settlement reading.
type LevelSource interface {
	Reading() (level, threshold float64)
}

// OracleSource supplies ingestion status and cache entries.
type OracleSource interface {
	Status() model.OracleStatus
	CachedData(location string) (model.CachedData, bool)
}

// BreakerSource supplies provider circuit breaker counters.
type BreakerSource interface {
	Stats() resilience.BreakerStats
}

// Collector reads metrics from the live components.
type Collector struct {
	policies PolicySource
	mirror   PolicySource
	levels   LevelSource
	oracle   OracleSource
	breaker  BreakerSource
	now      func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithMirror adds mirror ledger counts.
func WithMirror(m PolicySource) CollectorOption {
	return func(c *Collector) { c.mirror = m }
}

// WithBreaker adds provider breaker counters.
func WithBreaker(b BreakerSource) CollectorOption {
	return func(c *Collector) { c.breaker = b }
}

// WithClock overrides the collection timestamp source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a new metrics collector.
func NewCollector(policies PolicySource, levels LevelSource, oracle OracleSource, opts ...CollectorOption) *Collector {
	c := &Collector{policies: policies, levels: levels, oracle: oracle, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect gathers a snapshot. Each source is read under its own lock, so the
// snapshot is not atomic across components.
func (c *Collector) Collect() *MetricsSnapshot {
	snap := &MetricsSnapshot{CollectedAt: c.now().UTC()}

	ps := c.policies.Stats()
	snap.PoliciesTotal = ps.Total
	snap.PoliciesActive = ps.Active
	snap.PoliciesPaidOut = ps.PaidOut
	if c.mirror != nil {
		snap.MirrorTotal = c.mirror.Stats().Total
	}

	level, threshold := c.levels.Reading()
	snap.FloodLevelFeet = level
	snap.ThresholdFeet = threshold
	snap.ThresholdMet = telemetry.ThresholdMet(level, threshold)

	st := c.oracle.Status()
	snap.TotalUpdates = st.TotalUpdates
	snap.SuccessfulFetches = st.SuccessfulFetches
	snap.FailedFetches = st.FailedFetches
	snap.FetchFailRate = model.OracleStats{
		SuccessfulFetches: st.SuccessfulFetches,
		FailedFetches:     st.FailedFetches,
	}.FailureRate()
	snap.CachedLocations = len(st.CachedLocations)
	snap.IsPaused = st.IsPaused
	snap.CyclesCharged = st.CyclesCharged

	for _, loc := range st.CachedLocations {
		cd, ok := c.oracle.CachedData(loc)
		if !ok {
			continue
		}
		if snap.NewestReadingAt == nil || cd.CachedAt.After(*snap.NewestReadingAt) {
			at := cd.CachedAt
			snap.NewestReadingAt = &at
		}
	}

	if c.breaker != nil {
		bs := c.breaker.Stats()
		snap.BreakerState = bs.State.String()
		snap.BreakerTrips = bs.Trips
	}

	return snap
}
