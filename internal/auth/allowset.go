package auth

import (
	"slices"

	"github.com/sells-group/floodcover/internal/model"
)

// AllowSet is an insertion-ordered set of principals. It is not safe for
// concurrent use; the owning component serializes access.
type AllowSet struct {
	members []model.Principal
}

// NewAllowSet returns a set seeded with ps. Duplicates are dropped.
func NewAllowSet(ps ...model.Principal) *AllowSet {
	s := &AllowSet{}
	for _, p := range ps {
		s.Add(p)
	}
	return s
}

// Add inserts p and reports whether it was absent.
func (s *AllowSet) Add(p model.Principal) bool {
	if s.Contains(p) {
		return false
	}
	s.members = append(s.members, p)
	return true
}

// Remove deletes p and reports whether it was present. Removing an absent
// principal is a no-op.
func (s *AllowSet) Remove(p model.Principal) bool {
	i := slices.Index(s.members, p)
	if i < 0 {
		return false
	}
	s.members = slices.Delete(s.members, i, i+1)
	return true
}

// Contains reports membership. A nil set contains nothing.
func (s *AllowSet) Contains(p model.Principal) bool {
	if s == nil {
		return false
	}
	return slices.Contains(s.members, p)
}

// Members returns a copy of the members in insertion order.
func (s *AllowSet) Members() []model.Principal {
	if s == nil {
		return []model.Principal{}
	}
	out := make([]model.Principal, len(s.members))
	copy(out, s.members)
	return out
}

// Replace swaps the contents for ps.
func (s *AllowSet) Replace(ps []model.Principal) {
	s.members = s.members[:0]
	for _, p := range ps {
		s.Add(p)
	}
}

// Len returns the number of members.
func (s *AllowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}
