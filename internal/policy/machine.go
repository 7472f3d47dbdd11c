package policy

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/events"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/telemetry"
)

// LevelSource supplies the settlement level and threshold as one reading.
type LevelSource interface {
	Reading() (level, threshold float64)
}

// Machine enforces policy lifecycle transitions over a Ledger. Every method
// runs under the machine lock, so each call is atomic. The level source is
// read while the lock is held.
type Machine struct {
	mu     sync.RWMutex
	ledger *Ledger
	guard  *auth.Guard
	levels LevelSource
	pub    events.Publisher
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the wall clock used for purchase times.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithPublisher sets the event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(m *Machine) {
		if pub != nil {
			m.pub = pub
		}
	}
}

// NewMachine creates a machine over an empty ledger.
func NewMachine(guard *auth.Guard, levels LevelSource, opts ...Option) *Machine {
	m := &Machine{
		ledger: NewLedger(),
		guard:  guard,
		levels: levels,
		pub:    events.Nop{},
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "policy")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CreatePolicy issues a policy to caller. A holder may hold at most one active
// policy; an inactive one is superseded in the holder index.
func (m *Machine) CreatePolicy(ctx context.Context, caller model.Principal, premium, coverage *big.Int) (model.PolicyID, error) {
	if premium == nil || premium.Sign() <= 0 {
		return 0, model.Validation("premium must be greater than 0")
	}
	if coverage == nil || coverage.Sign() <= 0 {
		return 0, model.Validation("coverage must be greater than 0")
	}

	m.mu.Lock()
	if _, existing, ok := m.ledger.forHolder(caller); ok && existing != nil && existing.Active {
		m.mu.Unlock()
		return 0, model.Conflict("policy already active")
	}
	id := m.ledger.insert(model.Policy{
		Policyholder: caller,
		Premium:      new(big.Int).Set(premium),
		Coverage:     new(big.Int).Set(coverage),
		PurchaseTime: uint64(m.now().Unix()),
		Active:       true,
	})
	m.mu.Unlock()

	m.log.Info("policy created",
		zap.Uint64("policy_id", uint64(id)),
		zap.String("holder", string(caller)),
		zap.String("coverage", coverage.String()),
	)
	events.Emit(ctx, m.pub, events.New(events.PolicyCreated, map[string]any{
		"policy_id":    uint64(id),
		"policyholder": string(caller),
		"premium":      premium.String(),
		"coverage":     coverage.String(),
	}))
	return id, nil
}

// Policy returns a copy of the policy with the given id.
func (m *Machine) Policy(id model.PolicyID) (model.Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.ledger.get(id)
	if p == nil {
		return model.Policy{}, false
	}
	return p.Clone(), true
}

// PolicyByHolder follows the holder index.
func (m *Machine) PolicyByHolder(holder model.Principal) (model.Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, p, ok := m.ledger.forHolder(holder)
	if !ok || p == nil {
		return model.Policy{}, false
	}
	return p.Clone(), true
}

// AllPolicies lists every policy ordered by id. Admin only.
func (m *Machine) AllPolicies(caller model.Principal) ([]model.Policy, error) {
	if err := m.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.sorted(), nil
}

// Stats returns totals. Total is the issued-id counter.
func (m *Machine) Stats() model.PolicyStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.stats()
}

// UpdatePolicyStatus writes active and paidOut verbatim after validating the
// requested transition. Setting active on a paid-out policy is permitted.
func (m *Machine) UpdatePolicyStatus(ctx context.Context, caller model.Principal, id model.PolicyID, active, paidOut bool) error {
	m.mu.Lock()

	existing := m.ledger.get(id)
	if existing == nil {
		m.mu.Unlock()
		return model.NotFound("policy not found")
	}
	if err := m.guard.RequireOwnerOrAdmin(caller, existing.Policyholder); err != nil {
		m.mu.Unlock()
		return err
	}

	level, threshold := m.levels.Reading()
	switch {
	case paidOut && !existing.Active:
		m.mu.Unlock()
		return model.InvalidState("cannot pay out inactive policy")
	case paidOut && existing.PaidOut:
		m.mu.Unlock()
		return model.InvalidState("policy already paid out")
	case paidOut && !telemetry.ThresholdMet(level, threshold):
		m.mu.Unlock()
		return model.ThresholdNotMet("flood level below threshold")
	}

	newlyPaid := paidOut && !existing.PaidOut
	existing.Active = active
	existing.PaidOut = paidOut
	snapshot := existing.Clone()
	m.mu.Unlock()

	m.log.Info("policy status updated",
		zap.Uint64("policy_id", uint64(id)),
		zap.Bool("active", active),
		zap.Bool("paid_out", paidOut),
		zap.String("caller", string(caller)),
	)
	if newlyPaid {
		m.emitPaidOut(ctx, snapshot)
	}
	return nil
}

// TriggerPayout settles the caller's own policy and returns its coverage.
// Only the holder may trigger; the admin uses UpdatePolicyStatus instead.
func (m *Machine) TriggerPayout(ctx context.Context, caller model.Principal) (*big.Int, error) {
	m.mu.Lock()

	_, p, ok := m.ledger.forHolder(caller)
	if !ok {
		m.mu.Unlock()
		return nil, model.NotFound("no policy found")
	}
	if p == nil {
		m.mu.Unlock()
		return nil, model.NotFound("policy not found")
	}
	if p.PaidOut {
		m.mu.Unlock()
		return nil, model.InvalidState("payout already issued: policy already paid out")
	}
	if !p.Active {
		m.mu.Unlock()
		return nil, model.InvalidState("no active policy")
	}
	if level, threshold := m.levels.Reading(); !telemetry.ThresholdMet(level, threshold) {
		m.mu.Unlock()
		return nil, model.ThresholdNotMet("flood level below threshold")
	}

	p.PaidOut = true
	p.Active = false
	snapshot := p.Clone()
	m.mu.Unlock()

	m.log.Info("payout triggered",
		zap.Uint64("policy_id", uint64(snapshot.PolicyID)),
		zap.String("holder", string(caller)),
		zap.String("amount", snapshot.Coverage.String()),
	)
	m.emitPaidOut(ctx, snapshot)
	return snapshot.Coverage, nil
}

// IsPayoutEligible reports whether holder has an active unpaid policy and the
// current reading meets the threshold.
func (m *Machine) IsPayoutEligible(holder model.Principal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, p, ok := m.ledger.forHolder(holder)
	if !ok || p == nil || !p.Active || p.PaidOut {
		return false
	}
	return telemetry.ThresholdMet(m.levels.Reading())
}

// State exports the ledger for persistence.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.state()
}

// Load replaces the ledger contents with s.
func (m *Machine) Load(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.load(s)
}

func (m *Machine) emitPaidOut(ctx context.Context, p model.Policy) {
	events.Emit(ctx, m.pub, events.New(events.PolicyPaidOut, map[string]any{
		"policy_id":    uint64(p.PolicyID),
		"policyholder": string(p.Policyholder),
		"amount":       p.Coverage.String(),
	}))
}
