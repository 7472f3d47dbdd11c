package model

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestPolicyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		active  bool
		paidOut bool
		want    PolicyStatus
	}{
		{"active", true, false, PolicyStatusActive},
		{"inactive", false, false, PolicyStatusInactive},
		{"paid out", false, true, PolicyStatusPaidOut},
		{"paid out and active", true, true, PolicyStatusPaidOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Policy{Active: tt.active, PaidOut: tt.paidOut}
			assert.Equal(t, tt.want, p.Status())
		})
	}
}

func TestPolicyCloneIsDeep(t *testing.T) {
	t.Parallel()

	p := Policy{PolicyID: 1, Premium: big.NewInt(1000), Coverage: big.NewInt(100000)}
	c := p.Clone()
	c.Coverage.SetInt64(5)

	assert.Equal(t, int64(100000), p.Coverage.Int64())
	assert.Equal(t, int64(5), c.Coverage.Int64())
}

func TestPolicyCloneNilAmounts(t *testing.T) {
	t.Parallel()

	c := Policy{}.Clone()
	assert.Equal(t, 0, c.Premium.Sign())
	assert.Equal(t, 0, c.Coverage.Sign())
}

func TestPrincipalIsAnonymous(t *testing.T) {
	t.Parallel()

	assert.True(t, AnonymousPrincipal.IsAnonymous())
	assert.True(t, Principal("").IsAnonymous())
	assert.False(t, Principal("aaaaa-aa").IsAnonymous())
}

func TestOracleStatsFailureRate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, OracleStats{}.FailureRate())
	s := OracleStats{TotalUpdates: 6, SuccessfulFetches: 6, FailedFetches: 2}
	assert.Equal(t, uint64(8), s.Attempts())
	assert.InDelta(t, 0.25, s.FailureRate(), 1e-9)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	err := Conflict("policyholder %s already has an active policy", "abc")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "policyholder abc already has an active policy", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))

	assert.Equal(t, ErrorKind(""), KindOf(eris.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestParseFailureIsExternalFetch(t *testing.T) {
	t.Parallel()

	err := ParseFailure("no values found")
	assert.True(t, errors.Is(err, ErrExternalFetch))
	assert.Equal(t, "parse error: no values found", err.Error())
	assert.True(t, IsParseFailure(fmt.Errorf("fetch: %w", err)))
	assert.False(t, IsParseFailure(ExternalFetch("http request failed: unexpected status 503")))
	assert.False(t, IsParseFailure(eris.New("parse error: not classified")))
}
