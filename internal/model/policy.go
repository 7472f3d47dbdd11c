package model

import (
	"math/big"
)

// Principal is an opaque caller identity. Identities compare by value.
type Principal string

// AnonymousPrincipal is the identity assigned to callers that present none.
const AnonymousPrincipal Principal = "2vxsx-fae"

// IsAnonymous reports whether p is the anonymous identity or empty.
func (p Principal) IsAnonymous() bool {
	return p == "" || p == AnonymousPrincipal
}

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// PolicyID identifies a policy. IDs are assigned from 1 and never reused.
type PolicyID uint64

// PolicyStatus is a coarse view of a policy's lifecycle flags.
type PolicyStatus string

// Policy status values derived from the active and paid-out flags.
const (
	PolicyStatusActive   PolicyStatus = "active"
	PolicyStatusInactive PolicyStatus = "inactive"
	PolicyStatusPaidOut  PolicyStatus = "paid_out"
)

// Policy is a coverage contract bound to a single policyholder.
type Policy struct {
	PolicyID     PolicyID  `json:"policy_id"`
	Policyholder Principal `json:"policyholder"`
	Premium      *big.Int  `json:"premium"`
	Coverage     *big.Int  `json:"coverage"`
	PurchaseTime uint64    `json:"purchase_time"` // seconds since epoch
	Active       bool      `json:"active"`
	PaidOut      bool      `json:"paid_out"`
}

// Status returns the derived lifecycle status. Paid-out wins over active.
func (p Policy) Status() PolicyStatus {
	switch {
	case p.PaidOut:
		return PolicyStatusPaidOut
	case p.Active:
		return PolicyStatusActive
	default:
		return PolicyStatusInactive
	}
}

// Clone returns a deep copy so callers cannot mutate ledger amounts.
func (p Policy) Clone() Policy {
	out := p
	out.Premium = cloneInt(p.Premium)
	out.Coverage = cloneInt(p.Coverage)
	return out
}

// MirrorPolicy is a read-only copy of a policy held on an external ledger.
// Holder addresses are opaque text and never validated.
type MirrorPolicy struct {
	PolicyID        PolicyID `json:"policy_id"`
	PolicyholderEth string   `json:"policyholder_eth"`
	PremiumWei      *big.Int `json:"premium_wei"`
	CoverageWei     *big.Int `json:"coverage_wei"`
	PurchaseTime    uint64   `json:"purchase_time"`
	Active          bool     `json:"active"`
	PaidOut         bool     `json:"paid_out"`
}

// Clone returns a deep copy of the mirror record.
func (m MirrorPolicy) Clone() MirrorPolicy {
	out := m
	out.PremiumWei = cloneInt(m.PremiumWei)
	out.CoverageWei = cloneInt(m.CoverageWei)
	return out
}

// PolicyStats summarizes a ledger.
type PolicyStats struct {
	Total   uint64 `json:"total_policies"`
	Active  uint64 `json:"active_policies"`
	PaidOut uint64 `json:"paid_out_policies"`
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
