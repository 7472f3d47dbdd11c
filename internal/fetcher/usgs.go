package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/resilience"
)

const (
	// MaxResponseBytes bounds a provider response body.
	MaxResponseBytes = 10_000
	// CallBudget is charged to the meter for every provider call.
	CallBudget uint64 = 20_000_000_000
	// GageHeightParameter is the provider parameter code for gage height in feet.
	GageHeightParameter = "00065"
	// SourceLabel identifies readings produced by this fetcher.
	SourceLabel = "USGS Water Data"
)

// Meter accumulates the budget charged for provider calls.
type Meter struct {
	charged atomic.Uint64
	calls   atomic.Uint64
}

// Charge adds n to the total.
func (m *Meter) Charge(n uint64) {
	m.charged.Add(n)
	m.calls.Add(1)
}

// Charged returns the total charged so far.
func (m *Meter) Charged() uint64 { return m.charged.Load() }

// Calls returns the number of charged calls.
func (m *Meter) Calls() uint64 { return m.calls.Load() }

// TelemetryFetcher retrieves the latest gage height for a site.
type TelemetryFetcher struct {
	doer      Doer
	breaker   *resilience.CircuitBreaker
	meter     *Meter
	transform Transform
	now       func() time.Time
	log       *zap.Logger
}

// TelemetryOption configures a TelemetryFetcher.
type TelemetryOption func(*TelemetryFetcher)

// WithBreaker guards provider calls with cb.
func WithBreaker(cb *resilience.CircuitBreaker) TelemetryOption {
	return func(f *TelemetryFetcher) { f.breaker = cb }
}

// WithTransform sets the response normalization hook.
func WithTransform(t Transform) TelemetryOption {
	return func(f *TelemetryFetcher) { f.transform = t }
}

// WithClock overrides the timestamp source for readings.
func WithClock(now func() time.Time) TelemetryOption {
	return func(f *TelemetryFetcher) { f.now = now }
}

// NewTelemetryFetcher creates a fetcher over doer.
func NewTelemetryFetcher(doer Doer, opts ...TelemetryOption) *TelemetryFetcher {
	f := &TelemetryFetcher{
		doer:      doer,
		meter:     &Meter{},
		transform: Identity,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "fetcher")),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Meter exposes the budget meter.
func (f *TelemetryFetcher) Meter() *Meter { return f.meter }

// Breaker exposes the circuit breaker, or nil.
func (f *TelemetryFetcher) Breaker() *resilience.CircuitBreaker { return f.breaker }

// BuildURL returns the instantaneous-values query for site.
func BuildURL(baseURL, site string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + "format=json&sites=" + url.QueryEscape(site) +
		"&parameterCd=" + GageHeightParameter + "&siteStatus=all"
}

// FetchFloodData performs one provider call for site and parses the result.
// The call is charged to the meter whether or not it succeeds. All failures
// are ExternalFetchFailure.
func (f *TelemetryFetcher) FetchFloodData(ctx context.Context, baseURL, site string) (model.FloodData, error) {
	u := BuildURL(baseURL, site)
	f.log.Debug("fetching water data", zap.String("url", u))

	req := Request{URL: u, MaxResponseBytes: MaxResponseBytes, Transform: f.transform}
	f.meter.Charge(CallBudget)

	var (
		resp Response
		err  error
	)
	if f.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (Response, error) {
			return f.doer.Do(ctx, req)
		})
	} else {
		resp, err = f.doer.Do(ctx, req)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return model.FloodData{}, model.ExternalFetch("http request failed: provider circuit open")
		}
		return model.FloodData{}, model.ExternalFetch("http request failed: %v", err)
	}
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return model.FloodData{}, model.ExternalFetch("http request failed: unexpected status %d", resp.StatusCode)
	}

	return ParseResponse(resp.Body, site, f.now())
}

type ivResponse struct {
	Value struct {
		TimeSeries []struct {
			SourceInfo struct {
				SiteName string `json:"siteName"`
				SiteCode []struct {
					Value string `json:"value"`
				} `json:"siteCode"`
			} `json:"sourceInfo"`
			Values []struct {
				Value []struct {
					Value    string `json:"value"`
					DateTime string `json:"dateTime"`
				} `json:"value"`
			} `json:"values"`
		} `json:"timeSeries"`
	} `json:"value"`
}

// ParseResponse decodes the first reading of the first time series. The
// first time series is taken to be the requested site.
func ParseResponse(body []byte, site string, now time.Time) (model.FloodData, error) {
	if _, _, err := transform.Bytes(encoding.UTF8Validator, body); err != nil {
		return model.FloodData{}, model.ParseFailure("failed to parse response body: %v", err)
	}

	var doc ivResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.FloodData{}, model.ParseFailure("failed to parse JSON: %v", err)
	}

	if len(doc.Value.TimeSeries) == 0 {
		return model.FloodData{}, model.ParseFailure("no time series data found")
	}
	ts := doc.Value.TimeSeries[0]

	if len(ts.Values) == 0 {
		return model.FloodData{}, model.ParseFailure("no values found")
	}
	if len(ts.Values[0].Value) == 0 {
		return model.FloodData{}, model.ParseFailure("no latest value found")
	}

	raw := ts.Values[0].Value[0].Value
	level, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(level) || math.IsInf(level, 0) {
		return model.FloodData{}, model.ParseFailure("failed to parse water level %q", raw)
	}

	return model.FloodData{
		Location:       site,
		WaterLevelFeet: level,
		Timestamp:      now.UTC(),
		Source:         SourceLabel,
		SiteName:       ts.SourceInfo.SiteName,
	}, nil
}
