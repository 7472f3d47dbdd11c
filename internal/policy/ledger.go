// Package policy implements the policy ledger and its lifecycle state machine.
package policy

import (
	"sort"

	"github.com/sells-group/floodcover/internal/model"
)

// Ledger is the policy store: records by id, the last issued id, and the
// holder index. It has no lock of its own; Machine serializes access.
type Ledger struct {
	policies map[model.PolicyID]*model.Policy
	counter  model.PolicyID
	byHolder map[model.Principal]model.PolicyID
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		policies: make(map[model.PolicyID]*model.Policy),
		byHolder: make(map[model.Principal]model.PolicyID),
	}
}

// get returns the record for id or nil.
func (l *Ledger) get(id model.PolicyID) *model.Policy {
	return l.policies[id]
}

// forHolder follows the holder index. The index may point at an id with no
// record, in which case nil is returned with ok=true.
func (l *Ledger) forHolder(holder model.Principal) (id model.PolicyID, p *model.Policy, ok bool) {
	id, ok = l.byHolder[holder]
	if !ok {
		return 0, nil, false
	}
	return id, l.policies[id], true
}

// insert allocates the next id, stores p under it and points the holder at it.
func (l *Ledger) insert(p model.Policy) model.PolicyID {
	l.counter++
	p.PolicyID = l.counter
	l.policies[p.PolicyID] = &p
	l.byHolder[p.Policyholder] = p.PolicyID
	return p.PolicyID
}

// sorted returns copies of every record ordered by id.
func (l *Ledger) sorted() []model.Policy {
	out := make([]model.Policy, 0, len(l.policies))
	for _, p := range l.policies {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out
}

func (l *Ledger) stats() model.PolicyStats {
	s := model.PolicyStats{Total: uint64(l.counter)}
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

// State is the persisted form of the ledger.
type State struct {
	Policies    []model.Policy
	Counter     model.PolicyID
	HolderIndex map[model.Principal]model.PolicyID
}

func (l *Ledger) state() State {
	idx := make(map[model.Principal]model.PolicyID, len(l.byHolder))
	for k, v := range l.byHolder {
		idx[k] = v
	}
	return State{Policies: l.sorted(), Counter: l.counter, HolderIndex: idx}
}

func (l *Ledger) load(s State) {
	l.policies = make(map[model.PolicyID]*model.Policy, len(s.Policies))
	for _, p := range s.Policies {
		c := p.Clone()
		l.policies[c.PolicyID] = &c
	}
	l.byHolder = make(map[model.Principal]model.PolicyID, len(s.HolderIndex))
	for k, v := range s.HolderIndex {
		l.byHolder[k] = v
	}
	l.counter = s.Counter
}
