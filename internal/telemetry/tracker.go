// Package telemetry holds the settlement water level and payout threshold.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/events"
	"github.com/sells-group/floodcover/internal/model"
)

const (
	// DefaultThresholdFeet is the payout threshold used at startup.
	DefaultThresholdFeet = 12.0
	// MaxThresholdFeet is the largest accepted threshold.
	MaxThresholdFeet = 100.0
)

// State is the persisted form of the tracker.
type State struct {
	FloodLevel     float64
	FloodThreshold float64
	OracleUpdaters []model.Principal
}

// Tracker holds the current level and threshold used for payout eligibility.
// It is independent of the ingestion cache.
type Tracker struct {
	mu        sync.RWMutex
	guard     *auth.Guard
	level     float64
	threshold float64
	updaters  *auth.AllowSet
	pub       events.Publisher
	log       *zap.Logger
}

// NewTracker creates a tracker at level 0 with the given threshold and updaters.
func NewTracker(guard *auth.Guard, threshold float64, updaters []model.Principal, pub events.Publisher) *Tracker {
	if threshold <= 0 || threshold > MaxThresholdFeet {
		threshold = DefaultThresholdFeet
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Tracker{
		guard:     guard,
		threshold: threshold,
		updaters:  auth.NewAllowSet(updaters...),
		pub:       pub,
		log:       zap.L().With(zap.String("component", "telemetry")),
	}
}

// SetFloodLevel records a new settlement level. Admin or an oracle updater only.
// Any float is accepted.
func (t *Tracker) SetFloodLevel(ctx context.Context, caller model.Principal, level float64) error {
	t.mu.Lock()
	if err := t.guard.RequireUpdater(caller, t.updaters); err != nil {
		t.mu.Unlock()
		return err
	}
	old := t.level
	t.level = level
	t.mu.Unlock()

	t.log.Info("flood level updated",
		zap.String("old", feet(old)),
		zap.String("new", feet(level)),
		zap.String("caller", string(caller)),
	)
	events.Emit(ctx, t.pub, events.New(events.FloodLevelUpdated, map[string]any{
		"old_level": old,
		"new_level": level,
	}))
	return nil
}

// FloodLevel returns the current level.
func (t *Tracker) FloodLevel() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level
}

// SetFloodThreshold changes the payout threshold. Admin only; the value must be
// in (0, 100].
func (t *Tracker) SetFloodThreshold(ctx context.Context, caller model.Principal, threshold float64) error {
	if err := t.guard.RequireAdmin(caller); err != nil {
		return err
	}
	if !(threshold > 0) {
		return model.Validation("threshold must be greater than 0")
	}
	if threshold > MaxThresholdFeet {
		return model.Validation("threshold cannot exceed 100 feet")
	}

	t.mu.Lock()
	old := t.threshold
	t.threshold = threshold
	t.mu.Unlock()

	t.log.Info("flood threshold updated",
		zap.String("old", feet(old)),
		zap.String("new", feet(threshold)),
	)
	events.Emit(ctx, t.pub, events.New(events.FloodThresholdUpdated, map[string]any{
		"old_threshold": old,
		"new_threshold": threshold,
	}))
	return nil
}

// FloodThreshold returns the current threshold.
func (t *Tracker) FloodThreshold() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.threshold
}

// Reading returns level and threshold from the same instant.
func (t *Tracker) Reading() (level, threshold float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level, t.threshold
}

// ThresholdMet reports whether the current reading qualifies for payout.
func (t *Tracker) ThresholdMet() bool {
	return ThresholdMet(t.Reading())
}

// AddOracleUpdater grants the updater role. Admin only.
func (t *Tracker) AddOracleUpdater(caller, p model.Principal) error {
	if err := t.guard.RequireAdmin(caller); err != nil {
		return err
	}
	t.mu.Lock()
	added := t.updaters.Add(p)
	t.mu.Unlock()
	if added {
		t.log.Info("oracle updater added", zap.String("principal", string(p)))
	}
	return nil
}

// RemoveOracleUpdater revokes the updater role. Admin only; absent principals
// are ignored.
func (t *Tracker) RemoveOracleUpdater(caller, p model.Principal) error {
	if err := t.guard.RequireAdmin(caller); err != nil {
		return err
	}
	t.mu.Lock()
	removed := t.updaters.Remove(p)
	t.mu.Unlock()
	if removed {
		t.log.Info("oracle updater removed", zap.String("principal", string(p)))
	}
	return nil
}

// OracleUpdaters lists updaters. Admin only.
func (t *Tracker) OracleUpdaters(caller model.Principal) ([]model.Principal, error) {
	if err := t.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updaters.Members(), nil
}

// State exports the tracker for persistence.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{
		FloodLevel:     t.level,
		FloodThreshold: t.threshold,
		OracleUpdaters: t.updaters.Members(),
	}
}

// Load replaces the tracker contents with s.
func (t *Tracker) Load(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = s.FloodLevel
	t.threshold = s.FloodThreshold
	t.updaters.Replace(s.OracleUpdaters)
}

// WholeFeet truncates a level toward zero. NaN and negative levels become 0.
func WholeFeet(level float64) float64 {
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	return math.Trunc(level)
}

// ThresholdMet compares the whole-foot level with the fractional threshold.
// A level of 12.9 does not meet a threshold of 12.5.
func ThresholdMet(level, threshold float64) bool {
	return WholeFeet(level) >= threshold
}

func feet(v float64) string {
	return fmt.Sprintf("%.2f ft", v)
}
