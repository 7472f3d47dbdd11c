package snapshot

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcover/internal/model"
)

func sampleState() State {
	updated := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return State{
		Policies: []model.Policy{{
			PolicyID:     1,
			Policyholder: "alice",
			Premium:      big.NewInt(100),
			Coverage:     big.NewInt(1000),
			PurchaseTime: 1_700_000_000,
			Active:       true,
		}},
		PolicyCounter:  1,
		HolderIndex:    map[model.Principal]model.PolicyID{"alice": 1},
		FloodLevel:     13.2,
		FloodThreshold: 12,
		Admin:          "admin",
		OracleUpdaters: []model.Principal{"admin", "feeder"},
		OracleConfig: model.OracleConfig{
			UpdateIntervalSecs:   300,
			MaxRetries:           3,
			AuthorizedPrincipals: []model.Principal{"admin"},
			BaseURL:              "https://waterservices.usgs.gov/nwis/iv/",
		},
		OracleCache: map[string]model.CachedData{
			"01646500": {
				Data: model.FloodData{
					Location:       "01646500",
					WaterLevelFeet: 3.45,
					Timestamp:      updated,
					Source:         "USGS Water Data",
					SiteName:       "POTOMAC",
				},
				CachedAt: updated,
			},
		},
		OracleStats: model.OracleStats{TotalUpdates: 1, SuccessfulFetches: 1, LastUpdate: &updated},
		Mirror: []model.MirrorPolicy{{
			PolicyID:        7,
			PolicyholderEth: "0xabc",
			PremiumWei:      big.NewInt(5),
			CoverageWei:     big.NewInt(50),
			Active:          true,
		}},
	}
}

func TestEncodeDecode_Current(t *testing.T) {
	in := sampleState()
	data, err := Encode(in)
	require.NoError(t, err)

	out, version, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, version)
	assert.Equal(t, in.PolicyCounter, out.PolicyCounter)
	assert.Equal(t, in.HolderIndex, out.HolderIndex)
	assert.Equal(t, in.OracleConfig, out.OracleConfig)
	assert.Equal(t, in.OracleUpdaters, out.OracleUpdaters)
	assert.Equal(t, 0, in.Policies[0].Coverage.Cmp(out.Policies[0].Coverage))
	assert.Equal(t, 0, in.Mirror[0].CoverageWei.Cmp(out.Mirror[0].CoverageWei))
	assert.True(t, in.OracleStats.LastUpdate.Equal(*out.OracleStats.LastUpdate))
	assert.InDelta(t, 3.45, out.OracleCache["01646500"].Data.WaterLevelFeet, 1e-9)
	assert.InDelta(t, 13.2, out.FloodLevel, 1e-9)
}

func TestDecode_LegacyPayloadGetsEmptyMirror(t *testing.T) {
	data, err := EncodeVersion(sampleState(), 1)
	require.NoError(t, err)

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &parts))
	assert.Len(t, parts, 10)

	out, version, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.NotNil(t, out.Mirror)
	assert.Empty(t, out.Mirror)
	assert.Equal(t, model.Principal("admin"), out.Admin)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"object", `{"policies":[]}`},
		{"too few", `[[],0,{},0,12,"a",[],{}]`},
		{"too many", `[[],0,{},0,12,"a",[],{},{},{},[],[]]`},
		{"bad component", `[[],"x",{},0,12,"a",[],{},{},{},[]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "no schema matched")
		})
	}
}

func TestDecode_UnknownFieldRejected(t *testing.T) {
	data := `[[],0,{},0,12,"a",[],{"update_interval_seconds":300,"bogus":1},{},{},[]]`
	_, _, err := Decode([]byte(data))
	require.Error(t, err)
}

func TestEncode_NonFiniteLevels(t *testing.T) {
	s := sampleState()
	s.FloodLevel = math.NaN()
	s.FloodThreshold = math.Inf(1)

	data, err := Encode(s)
	require.NoError(t, err)

	out, _, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.FloodLevel))
	assert.True(t, math.IsInf(out.FloodThreshold, 1))
}

func TestEncode_EmptyStateNormalized(t *testing.T) {
	data, err := Encode(State{})
	require.NoError(t, err)

	out, _, err := Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, out.Policies)
	assert.NotNil(t, out.HolderIndex)
	assert.NotNil(t, out.OracleCache)
	assert.NotNil(t, out.Mirror)
}

func TestEncodeVersion_Unknown(t *testing.T) {
	_, err := EncodeVersion(State{}, 9)
	require.Error(t, err)
}
