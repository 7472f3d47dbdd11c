package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "floodcover"

func desc(subsystem, name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
}

// engineCollector exposes a fresh MetricsSnapshot on every scrape.
type engineCollector struct {
	source *Collector

	policies        *prometheus.Desc
	policiesActive  *prometheus.Desc
	policiesPaidOut *prometheus.Desc
	mirror          *prometheus.Desc
	level           *prometheus.Desc
	threshold       *prometheus.Desc
	thresholdMet    *prometheus.Desc
	updates         *prometheus.Desc
	fetchSuccess    *prometheus.Desc
	fetchFailure    *prometheus.Desc
	cached          *prometheus.Desc
	readingAge      *prometheus.Desc
	paused          *prometheus.Desc
	cycles          *prometheus.Desc
	breakerOpen     *prometheus.Desc
	breakerTrips    *prometheus.Desc
}

func newEngineCollector(source *Collector) *engineCollector {
	return &engineCollector{
		source:          source,
		policies:        desc("policy", "issued_total", "Policies issued since start of ledger."),
		policiesActive:  desc("policy", "active", "Policies currently active."),
		policiesPaidOut: desc("policy", "paid_out", "Policies paid out."),
		mirror:          desc("mirror", "policies", "Records in the mirror ledger."),
		level:           desc("flood", "level_feet", "Settlement flood level in feet."),
		threshold:       desc("flood", "threshold_feet", "Payout threshold in feet."),
		thresholdMet:    desc("flood", "threshold_met", "1 when the truncated level meets the threshold."),
		updates:         desc("oracle", "cache_updates_total", "Cache writes from provider fetches."),
		fetchSuccess:    desc("oracle", "fetch_success_total", "Successful provider fetches."),
		fetchFailure:    desc("oracle", "fetch_failure_total", "Failed provider fetches."),
		cached:          desc("oracle", "cached_locations", "Locations in the ingestion cache."),
		readingAge:      desc("oracle", "newest_reading_age_seconds", "Age of the newest cached reading."),
		paused:          desc("oracle", "paused", "1 when ingestion is paused."),
		cycles:          desc("oracle", "budget_charged_total", "Call budget charged for provider calls."),
		breakerOpen:     desc("provider", "circuit_open", "1 when the provider circuit breaker is not closed."),
		breakerTrips:    desc("provider", "circuit_trips_total", "Times the provider breaker opened."),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.policies, c.policiesActive, c.policiesPaidOut, c.mirror,
		c.level, c.threshold, c.thresholdMet,
		c.updates, c.fetchSuccess, c.fetchFailure, c.cached, c.readingAge, c.paused, c.cycles,
		c.breakerOpen, c.breakerTrips,
	} {
		ch <- d
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Collect()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.policies, s.PoliciesTotal)
	gauge(c.policiesActive, float64(s.PoliciesActive))
	gauge(c.policiesPaidOut, float64(s.PoliciesPaidOut))
	gauge(c.mirror, float64(s.MirrorTotal))
	gauge(c.level, s.FloodLevelFeet)
	gauge(c.threshold, s.ThresholdFeet)
	gauge(c.thresholdMet, boolGauge(s.ThresholdMet))
	counter(c.updates, s.TotalUpdates)
	counter(c.fetchSuccess, s.SuccessfulFetches)
	counter(c.fetchFailure, s.FailedFetches)
	gauge(c.cached, float64(s.CachedLocations))
	if s.NewestReadingAt != nil {
		gauge(c.readingAge, s.CollectedAt.Sub(*s.NewestReadingAt).Seconds())
	}
	gauge(c.paused, boolGauge(s.IsPaused))
	counter(c.cycles, s.CyclesCharged)
	if s.BreakerState != "" {
		gauge(c.breakerOpen, boolGauge(s.BreakerState != "closed"))
		counter(c.breakerTrips, s.BreakerTrips)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// HTTPMetrics records API request outcomes.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Observe records one request. route is the matched pattern, not the raw path.
func (m *HTTPMetrics) Observe(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(d.Seconds())
}

// Metrics is the registry served at /metrics.
type Metrics struct {
	Registry *prometheus.Registry
	HTTP     *HTTPMetrics
}

// NewMetrics registers the engine collector, API request metrics and the
// runtime collectors on a fresh registry.
func NewMetrics(source *Collector) *Metrics {
	reg := prometheus.NewRegistry()
	httpMetrics := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(
		newEngineCollector(source),
		httpMetrics.requests,
		httpMetrics.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{Registry: reg, HTTP: httpMetrics}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
