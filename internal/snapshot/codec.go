// Package snapshot encodes engine state for persistence across restarts and
// stores encoded payloads in SQLite or Postgres.
package snapshot

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodcover/internal/model"
)

// CurrentVersion is the schema written by Encode.
const CurrentVersion = 2

// State is every persisted component of the engine.
type State struct {
	Policies       []model.Policy
	PolicyCounter  model.PolicyID
	HolderIndex    map[model.Principal]model.PolicyID
	FloodLevel     float64
	FloodThreshold float64
	Admin          model.Principal
	OracleUpdaters []model.Principal
	OracleConfig   model.OracleConfig
	OracleCache    map[string]model.CachedData
	OracleStats    model.OracleStats
	Mirror         []model.MirrorPolicy
}

// schema is one payload layout. A payload is a JSON array whose first fields
// elements are the State components in declaration order; fill sets defaults
// for components the layout lacks.
type schema struct {
	version int
	fields  int
	fill    func(*State)
}

// schemas are tried newest first.
var schemas = []schema{
	{version: 2, fields: 11},
	{version: 1, fields: 10, fill: func(s *State) { s.Mirror = []model.MirrorPolicy{} }},
}

// components returns decode targets in payload order.
func components(s *State) []any {
	return []any{
		&s.Policies,
		&s.PolicyCounter,
		&s.HolderIndex,
		(*float)(&s.FloodLevel),
		(*float)(&s.FloodThreshold),
		&s.Admin,
		&s.OracleUpdaters,
		&s.OracleConfig,
		&s.OracleCache,
		&s.OracleStats,
		&s.Mirror,
	}
}

// Encode writes s in the current schema.
func Encode(s State) ([]byte, error) {
	s.normalize()
	data, err := json.Marshal(components(&s))
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: encode")
	}
	return data, nil
}

// EncodeVersion writes s in an older schema. Used to produce legacy payloads.
func EncodeVersion(s State, version int) ([]byte, error) {
	for _, sc := range schemas {
		if sc.version != version {
			continue
		}
		s.normalize()
		data, err := json.Marshal(components(&s)[:sc.fields])
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: encode v%d", version)
		}
		return data, nil
	}
	return nil, eris.Errorf("snapshot: unknown schema version %d", version)
}

// Decode reads a payload written by any known schema, newest first, and
// returns the state with the version that matched.
func Decode(data []byte) (State, int, error) {
	var fails []string
	for _, sc := range schemas {
		s, err := decodeWith(data, sc)
		if err == nil {
			return s, sc.version, nil
		}
		fails = append(fails, err.Error())
	}
	return State{}, 0, eris.Errorf("snapshot: no schema matched: %s", strings.Join(fails, "; "))
}

func decodeWith(data []byte, sc schema) (State, error) {
	var parts []json.RawMessage
	if err := strictUnmarshal(data, &parts); err != nil {
		return State{}, eris.Wrapf(err, "v%d", sc.version)
	}
	if len(parts) != sc.fields {
		return State{}, eris.Errorf("v%d: expected %d components, got %d", sc.version, sc.fields, len(parts))
	}

	var s State
	for i, target := range components(&s)[:sc.fields] {
		if err := strictUnmarshal(parts[i], target); err != nil {
			return State{}, eris.Wrapf(err, "v%d: component %d", sc.version, i)
		}
	}
	if sc.fill != nil {
		sc.fill(&s)
	}
	s.normalize()
	return s, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// normalize replaces nil collections with empty ones.
func (s *State) normalize() {
	if s.Policies == nil {
		s.Policies = []model.Policy{}
	}
	if s.HolderIndex == nil {
		s.HolderIndex = map[model.Principal]model.PolicyID{}
	}
	if s.OracleUpdaters == nil {
		s.OracleUpdaters = []model.Principal{}
	}
	if s.OracleConfig.AuthorizedPrincipals == nil {
		s.OracleConfig.AuthorizedPrincipals = []model.Principal{}
	}
	if s.OracleCache == nil {
		s.OracleCache = map[string]model.CachedData{}
	}
	if s.Mirror == nil {
		s.Mirror = []model.MirrorPolicy{}
	}
}

// float round-trips non-finite values, which plain JSON numbers cannot hold.
type float float64

func (f float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *float) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"NaN"`:
		*f = float(math.NaN())
		return nil
	case `"+Inf"`:
		*f = float(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = float(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = float(v)
	return nil
}
