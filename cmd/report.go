package main

import (
	"io"
	"math/big"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodcover/internal/engine"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/oracle"
	"github.com/sells-group/floodcover/internal/snapshot"
)

type snapshotMeta struct {
	ID            string    `yaml:"id"`
	SchemaVersion int       `yaml:"schema_version"`
	SavedAt       time.Time `yaml:"saved_at"`
	Bytes         int       `yaml:"bytes,omitempty"`
}

type floodReport struct {
	LevelFeet     float64 `yaml:"level_feet"`
	ThresholdFeet float64 `yaml:"threshold_feet"`
	ThresholdMet  bool    `yaml:"threshold_met"`
}

type countsReport struct {
	Total   uint64 `yaml:"total"`
	Active  uint64 `yaml:"active"`
	PaidOut uint64 `yaml:"paid_out"`
}

type oracleReport struct {
	BaseURL            string     `yaml:"base_url"`
	UpdateIntervalSecs uint64     `yaml:"update_interval_secs"`
	MaxRetries         uint32     `yaml:"max_retries"`
	Paused             bool       `yaml:"paused"`
	Authorized         []string   `yaml:"authorized_principals"`
	TotalUpdates       uint64     `yaml:"total_updates"`
	SuccessfulFetches  uint64     `yaml:"successful_fetches"`
	FailedFetches      uint64     `yaml:"failed_fetches"`
	LastUpdate         *time.Time `yaml:"last_update_time,omitempty"`
	LastError          string     `yaml:"last_error,omitempty"`
	CachedLocations    []string   `yaml:"cached_locations"`
}

// statusReport is the summary printed by `status`.
type statusReport struct {
	Snapshot snapshotMeta `yaml:"snapshot"`
	Admin    string       `yaml:"admin"`
	Updaters []string     `yaml:"oracle_updaters"`
	Flood    floodReport  `yaml:"flood"`
	Policies countsReport `yaml:"policies"`
	Mirror   countsReport `yaml:"mirror"`
	Oracle   oracleReport `yaml:"oracle"`
}

type policyRow struct {
	PolicyID     uint64    `yaml:"policy_id"`
	Policyholder string    `yaml:"policyholder"`
	Premium      string    `yaml:"premium"`
	Coverage     string    `yaml:"coverage"`
	PurchaseTime time.Time `yaml:"purchase_time"`
	Status       string    `yaml:"status"`
}

type mirrorRow struct {
	PolicyID        uint64 `yaml:"policy_id"`
	PolicyholderEth string `yaml:"policyholder_eth"`
	PremiumWei      string `yaml:"premium_wei"`
	CoverageWei     string `yaml:"coverage_wei"`
	PurchaseTime    uint64 `yaml:"purchase_time"`
	Active          bool   `yaml:"active"`
	PaidOut         bool   `yaml:"paid_out"`
}

type cacheRow struct {
	Location  string    `yaml:"location"`
	LevelFeet float64   `yaml:"water_level_feet"`
	SiteName  string    `yaml:"site_name,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
	CachedAt  time.Time `yaml:"cached_at"`
}

// inspectReport is the full dump printed by `snapshot inspect`.
type inspectReport struct {
	statusReport `yaml:",inline"`
	PolicyList   []policyRow `yaml:"policy_list"`
	MirrorList   []mirrorRow `yaml:"mirror_list"`
	Cache        []cacheRow  `yaml:"cache"`
}

// offlineEngine builds an engine holding s without starting ingestion. It
// answers the same aggregate queries as a live one.
func offlineEngine(s snapshot.State) (*engine.Engine, error) {
	eng, err := engine.New(engine.Options{
		Admin:            s.Admin,
		DefaultThreshold: s.FloodThreshold,
		Oracle:           oracle.Options{Config: s.OracleConfig},
	})
	if err != nil {
		return nil, eris.Wrap(err, "load snapshot")
	}
	eng.Apply(s)
	return eng, nil
}

func buildStatus(rec snapshot.Record, version int, s snapshot.State) (statusReport, error) {
	eng, err := offlineEngine(s)
	if err != nil {
		return statusReport{}, err
	}
	defer eng.Close()

	level, threshold := eng.Telemetry.Reading()
	ps, ms := eng.Policies.Stats(), eng.Mirror.Stats()
	st, oc := eng.Oracle.Status(), eng.Oracle.Configuration()
	updaters, _ := eng.Telemetry.OracleUpdaters(eng.Guard.Admin())

	return statusReport{
		Snapshot: snapshotMeta{ID: rec.ID, SchemaVersion: version, SavedAt: rec.SavedAt, Bytes: len(rec.Payload)},
		Admin:    string(eng.Guard.Admin()),
		Updaters: principalStrings(updaters),
		Flood: floodReport{
			LevelFeet:     level,
			ThresholdFeet: threshold,
			ThresholdMet:  eng.Telemetry.ThresholdMet(),
		},
		Policies: countsReport(ps),
		Mirror:   countsReport(ms),
		Oracle: oracleReport{
			BaseURL:            oc.BaseURL,
			UpdateIntervalSecs: oc.UpdateIntervalSecs,
			MaxRetries:         oc.MaxRetries,
			Paused:             oc.IsPaused,
			Authorized:         principalStrings(oc.AuthorizedPrincipals),
			TotalUpdates:       st.TotalUpdates,
			SuccessfulFetches:  st.SuccessfulFetches,
			FailedFetches:      st.FailedFetches,
			LastUpdate:         st.LastUpdate,
			LastError:          st.LastError,
			CachedLocations:    st.CachedLocations,
		},
	}, nil
}

func buildInspect(rec snapshot.Record, version int, s snapshot.State) (inspectReport, error) {
	sr, err := buildStatus(rec, version, s)
	if err != nil {
		return inspectReport{}, err
	}
	out := inspectReport{
		statusReport: sr,
		PolicyList:   make([]policyRow, 0, len(s.Policies)),
		MirrorList:   make([]mirrorRow, 0, len(s.Mirror)),
		Cache:        make([]cacheRow, 0, len(s.OracleCache)),
	}
	for _, p := range s.Policies {
		out.PolicyList = append(out.PolicyList, policyRow{
			PolicyID:     uint64(p.PolicyID),
			Policyholder: string(p.Policyholder),
			Premium:      amountString(p.Premium),
			Coverage:     amountString(p.Coverage),
			PurchaseTime: time.Unix(int64(p.PurchaseTime), 0).UTC(),
			Status:       string(p.Status()),
		})
	}
	for _, m := range s.Mirror {
		out.MirrorList = append(out.MirrorList, mirrorRow{
			PolicyID:        uint64(m.PolicyID),
			PolicyholderEth: m.PolicyholderEth,
			PremiumWei:      amountString(m.PremiumWei),
			CoverageWei:     amountString(m.CoverageWei),
			PurchaseTime:    m.PurchaseTime,
			Active:          m.Active,
			PaidOut:         m.PaidOut,
		})
	}
	for _, loc := range sr.Oracle.CachedLocations {
		cd := s.OracleCache[loc]
		out.Cache = append(out.Cache, cacheRow{
			Location:  loc,
			LevelFeet: cd.Data.WaterLevelFeet,
			SiteName:  cd.Data.SiteName,
			Timestamp: cd.Data.Timestamp,
			CachedAt:  cd.CachedAt,
		})
	}
	return out, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

func principalStrings(ps []model.Principal) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
