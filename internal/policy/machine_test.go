package policy

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/events"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/telemetry"
)

const (
	admin  model.Principal = "admin"
	holder model.Principal = "holder"
	other  model.Principal = "other"
)

type stubLevels struct {
	mu               sync.Mutex
	level, threshold float64
}

func (s *stubLevels) Reading() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.threshold
}

func (s *stubLevels) set(level float64) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T) (*Machine, *stubLevels, *events.Recorder) {
	t.Helper()
	levels := &stubLevels{threshold: 12}
	rec := &events.Recorder{}
	m := NewMachine(auth.NewGuard(admin), levels,
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(rec),
	)
	return m, levels, rec
}

func amount(v int64) *big.Int { return big.NewInt(v) }

func TestCreatePolicyRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestMachine(t)

	id, err := m.CreatePolicy(ctx, holder, amount(1000), amount(100000))
	require.NoError(t, err)
	assert.Equal(t, model.PolicyID(1), id)

	p, ok := m.Policy(id)
	require.True(t, ok)
	assert.True(t, p.Active)
	assert.False(t, p.PaidOut)
	assert.Equal(t, holder, p.Policyholder)
	assert.Equal(t, uint64(fixedNow.Unix()), p.PurchaseTime)
	assert.Equal(t, "100000", p.Coverage.String())

	byHolder, ok := m.PolicyByHolder(holder)
	require.True(t, ok)
	assert.Equal(t, p, byHolder)

	assert.Equal(t, []string{events.PolicyCreated}, rec.Types())
}

func TestCreatePolicyValidation(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	tests := []struct {
		name              string
		premium, coverage *big.Int
		wantMsg           string
	}{
		{"zero premium", amount(0), amount(10), "premium must be greater than 0"},
		{"zero coverage", amount(10), amount(0), "coverage must be greater than 0"},
		{"nil premium", nil, amount(10), "premium must be greater than 0"},
		{"negative coverage", amount(10), amount(-1), "coverage must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreatePolicy(ctx, holder, tt.premium, tt.coverage)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
	assert.Equal(t, uint64(0), m.Stats().Total)
}

func TestCreatePolicyConflictThenSupersede(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	first, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)

	_, err = m.CreatePolicy(ctx, holder, amount(2), amount(20))
	assert.True(t, errors.Is(err, model.ErrConflict))

	require.NoError(t, m.UpdatePolicyStatus(ctx, admin, first, false, false))

	second, err := m.CreatePolicy(ctx, holder, amount(2), amount(20))
	require.NoError(t, err)
	assert.Equal(t, model.PolicyID(2), second)

	p, ok := m.PolicyByHolder(holder)
	require.True(t, ok)
	assert.Equal(t, second, p.PolicyID)

	old, ok := m.Policy(first)
	require.True(t, ok)
	assert.False(t, old.Active)
}

func TestCreatePolicyCopiesAmounts(t *testing.T) {
	m, _, _ := newTestMachine(t)
	coverage := amount(500)

	id, err := m.CreatePolicy(context.Background(), holder, amount(1), coverage)
	require.NoError(t, err)
	coverage.SetInt64(1)

	p, _ := m.Policy(id)
	assert.Equal(t, "500", p.Coverage.String())
}

func TestTriggerPayoutScenario(t *testing.T) {
	ctx := context.Background()
	m, levels, rec := newTestMachine(t)

	_, err := m.CreatePolicy(ctx, holder, amount(1000), amount(100000))
	require.NoError(t, err)

	levels.set(11.9)
	assert.False(t, m.IsPayoutEligible(holder))
	_, err = m.TriggerPayout(ctx, holder)
	assert.True(t, errors.Is(err, model.ErrThresholdNotMet))

	levels.set(12.0)
	assert.True(t, m.IsPayoutEligible(holder))

	paid, err := m.TriggerPayout(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "100000", paid.String())

	p, _ := m.PolicyByHolder(holder)
	assert.False(t, p.Active)
	assert.True(t, p.PaidOut)
	assert.False(t, m.IsPayoutEligible(holder))

	_, err = m.TriggerPayout(ctx, holder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidState))
	assert.Contains(t, err.Error(), "already paid out")

	assert.Equal(t, []string{events.PolicyCreated, events.PolicyPaidOut}, rec.Types())
}

func TestTriggerPayoutErrors(t *testing.T) {
	ctx := context.Background()
	m, levels, _ := newTestMachine(t)
	levels.set(50)

	_, err := m.TriggerPayout(ctx, holder)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	id, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)

	// Admin cannot trigger on someone else's behalf.
	_, err = m.TriggerPayout(ctx, admin)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	require.NoError(t, m.UpdatePolicyStatus(ctx, holder, id, false, false))
	_, err = m.TriggerPayout(ctx, holder)
	assert.True(t, errors.Is(err, model.ErrInvalidState))
	assert.Equal(t, "no active policy", err.Error())
}

func TestTriggerPayoutFractionalThreshold(t *testing.T) {
	ctx := context.Background()
	m, levels, _ := newTestMachine(t)
	levels.threshold = 12.5

	_, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)

	levels.set(12.9)
	assert.False(t, m.IsPayoutEligible(holder))

	levels.set(13.0)
	assert.True(t, m.IsPayoutEligible(holder))
}

func TestUpdatePolicyStatus(t *testing.T) {
	ctx := context.Background()
	m, levels, rec := newTestMachine(t)

	err := m.UpdatePolicyStatus(ctx, admin, 99, true, false)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	id, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)

	err = m.UpdatePolicyStatus(ctx, other, id, false, false)
	assert.True(t, errors.Is(err, model.ErrUnauthorized))

	levels.set(3)
	err = m.UpdatePolicyStatus(ctx, admin, id, false, true)
	assert.True(t, errors.Is(err, model.ErrThresholdNotMet))

	levels.set(12)
	require.NoError(t, m.UpdatePolicyStatus(ctx, admin, id, false, true))
	p, _ := m.Policy(id)
	assert.Equal(t, model.PolicyStatusPaidOut, p.Status())

	err = m.UpdatePolicyStatus(ctx, admin, id, true, true)
	assert.True(t, errors.Is(err, model.ErrInvalidState))
	assert.Equal(t, "cannot pay out inactive policy", err.Error())

	assert.Equal(t, []string{events.PolicyCreated, events.PolicyPaidOut}, rec.Types())
}

func TestUpdatePolicyStatusDoublePayout(t *testing.T) {
	ctx := context.Background()
	m, levels, _ := newTestMachine(t)
	levels.set(20)

	id, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)
	require.NoError(t, m.UpdatePolicyStatus(ctx, admin, id, true, true))

	err = m.UpdatePolicyStatus(ctx, admin, id, true, true)
	assert.True(t, errors.Is(err, model.ErrInvalidState))
	assert.Equal(t, "policy already paid out", err.Error())
}

// A paid-out policy can be flipped back to active; the status update does not
// guard against it.
func TestUpdatePolicyStatusReactivatesPaidOutPolicy(t *testing.T) {
	ctx := context.Background()
	m, levels, _ := newTestMachine(t)
	levels.set(12)

	id, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)
	_, err = m.TriggerPayout(ctx, holder)
	require.NoError(t, err)

	require.NoError(t, m.UpdatePolicyStatus(ctx, admin, id, true, false))
	p, _ := m.Policy(id)
	assert.True(t, p.Active)
	assert.False(t, p.PaidOut)
	assert.True(t, m.IsPayoutEligible(holder))
}

func TestAllPoliciesAndStats(t *testing.T) {
	ctx := context.Background()
	m, levels, _ := newTestMachine(t)
	levels.set(12)

	for _, h := range []model.Principal{"c", "a", "b"} {
		_, err := m.CreatePolicy(ctx, h, amount(1), amount(10))
		require.NoError(t, err)
	}
	_, err := m.TriggerPayout(ctx, "a")
	require.NoError(t, err)

	_, err = m.AllPolicies(holder)
	assert.True(t, errors.Is(err, model.ErrUnauthorized))

	all, err := m.AllPolicies(admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, p := range all {
		assert.Equal(t, model.PolicyID(i+1), p.PolicyID)
	}

	assert.Equal(t, model.PolicyStats{Total: 3, Active: 2, PaidOut: 1}, m.Stats())
}

func TestStateLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMachine(t)

	_, err := m.CreatePolicy(ctx, holder, amount(1), amount(10))
	require.NoError(t, err)
	_, err = m.CreatePolicy(ctx, other, amount(2), amount(20))
	require.NoError(t, err)

	s := m.State()
	restored, _, _ := newTestMachine(t)
	restored.Load(s)

	assert.Equal(t, s, restored.State())
	id, err := restored.CreatePolicy(ctx, "third", amount(3), amount(30))
	require.NoError(t, err)
	assert.Equal(t, model.PolicyID(3), id)
}

func TestMachineWithTracker(t *testing.T) {
	ctx := context.Background()
	guard := auth.NewGuard(admin)
	tracker := telemetry.NewTracker(guard, telemetry.DefaultThresholdFeet, []model.Principal{admin}, nil)
	m := NewMachine(guard, tracker)

	_, err := m.CreatePolicy(ctx, holder, amount(1000), amount(100000))
	require.NoError(t, err)

	require.NoError(t, tracker.SetFloodLevel(ctx, admin, 11.9))
	assert.False(t, m.IsPayoutEligible(holder))
	require.NoError(t, tracker.SetFloodLevel(ctx, admin, 12.0))
	assert.True(t, m.IsPayoutEligible(holder))
}
