package model

import "time"

// FloodData is a single normalized water-level reading.
type FloodData struct {
	Location       string    `json:"location"`
	WaterLevelFeet float64   `json:"water_level"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	SiteName       string    `json:"site_name"`
}

// CachedData is the most recent successful reading for a location.
type CachedData struct {
	Data     FloodData `json:"data"`
	CachedAt time.Time `json:"cached_at"`
}

// OracleConfig controls the ingestion side. It is replaced wholesale on update.
type OracleConfig struct {
	UpdateIntervalSecs   uint64      `json:"update_interval_seconds"`
	MaxRetries           uint32      `json:"max_retries"`
	AuthorizedPrincipals []Principal `json:"authorized_principals"`
	BaseURL              string      `json:"usgs_base_url"`
	IsPaused             bool        `json:"is_paused"`
}

// Clone returns a copy with an independent principal slice.
func (c OracleConfig) Clone() OracleConfig {
	out := c
	out.AuthorizedPrincipals = append([]Principal(nil), c.AuthorizedPrincipals...)
	return out
}

// OracleStats counts provider calls. TotalUpdates counts cache writes; a
// failure leaves the previous cache entry intact.
type OracleStats struct {
	TotalUpdates      uint64     `json:"total_updates"`
	SuccessfulFetches uint64     `json:"successful_fetches"`
	FailedFetches     uint64     `json:"failed_fetches"`
	LastUpdate        *time.Time `json:"last_update_time,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// Attempts returns successful plus failed fetches.
func (s OracleStats) Attempts() uint64 {
	return s.SuccessfulFetches + s.FailedFetches
}

// FailureRate returns failed/attempts, or 0 when nothing has been attempted.
func (s OracleStats) FailureRate() float64 {
	if s.Attempts() == 0 {
		return 0
	}
	return float64(s.FailedFetches) / float64(s.Attempts())
}

// OracleStatus is the read-only status view of the ingestion side.
type OracleStatus struct {
	TotalUpdates       uint64     `json:"total_updates"`
	SuccessfulFetches  uint64     `json:"successful_fetches"`
	FailedFetches      uint64     `json:"failed_fetches"`
	LastUpdate         *time.Time `json:"last_update_time,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	CachedLocations    []string   `json:"cached_locations"`
	IsPaused           bool       `json:"is_paused"`
	UpdateIntervalSecs uint64     `json:"update_interval_seconds"`
	CyclesCharged      uint64     `json:"cycles_charged"`
}
