// Package mirror keeps an admin-managed copy of policies settled on an
// external ledger. Records are never cross-checked against local policies.
package mirror

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/model"
)

// Ledger is a keyed upsert store of mirror records.
type Ledger struct {
	mu       sync.RWMutex
	guard    *auth.Guard
	policies map[model.PolicyID]model.MirrorPolicy
	log      *zap.Logger
}

// NewLedger creates an empty mirror ledger.
func NewLedger(guard *auth.Guard) *Ledger {
	return &Ledger{
		guard:    guard,
		policies: make(map[model.PolicyID]model.MirrorPolicy),
		log:      zap.L().With(zap.String("component", "mirror")),
	}
}

// Upsert inserts or replaces one record. Admin only.
func (l *Ledger) Upsert(caller model.Principal, p model.MirrorPolicy) error {
	return l.BatchUpsert(caller, []model.MirrorPolicy{p})
}

// BatchUpsert inserts or replaces each record in order; later duplicates win.
// Admin only.
func (l *Ledger) BatchUpsert(caller model.Principal, ps []model.MirrorPolicy) error {
	if err := l.guard.RequireAdmin(caller); err != nil {
		return err
	}
	l.mu.Lock()
	for _, p := range ps {
		l.policies[p.PolicyID] = p.Clone()
	}
	l.mu.Unlock()

	l.log.Debug("mirror policies upserted", zap.Int("count", len(ps)))
	return nil
}

// Clear removes every record. Admin only.
func (l *Ledger) Clear(caller model.Principal) error {
	if err := l.guard.RequireAdmin(caller); err != nil {
		return err
	}
	l.mu.Lock()
	n := len(l.policies)
	l.policies = make(map[model.PolicyID]model.MirrorPolicy)
	l.mu.Unlock()

	l.log.Info("mirror policies cleared", zap.Int("count", n))
	return nil
}

// Policies returns every record ordered by id.
func (l *Ledger) Policies() []model.MirrorPolicy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.MirrorPolicy, 0, len(l.policies))
	for _, p := range l.policies {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out
}

// Stats counts records. Total is the number of records held.
func (l *Ledger) Stats() model.PolicyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := model.PolicyStats{Total: uint64(len(l.policies))}
	for _, p := range l.policies {
		if p.Active {
			s.Active++
		}
		if p.PaidOut {
			s.PaidOut++
		}
	}
	return s
}

// Load replaces the contents without an authorization check. Used on restore.
func (l *Ledger) Load(ps []model.MirrorPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies = make(map[model.PolicyID]model.MirrorPolicy, len(ps))
	for _, p := range ps {
		l.policies[p.PolicyID] = p.Clone()
	}
}
