package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of one bank and its HTTP surface.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FeedRequestsTotal *prometheus.CounterVec
	CacheReadsTotal   *prometheus.CounterVec
	CacheWritesTotal  *prometheus.CounterVec
	RefreshesTotal    *prometheus.CounterVec
	RateLookupsTotal  *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		FeedRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "currencylayer_feed_requests_total",
				Help: "Calls to the live quotes feed by parse outcome",
			},
			[]string{"outcome"},
		),

		CacheReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "currencylayer_cache_reads_total",
				Help: "Cache store reads by result",
			},
			[]string{"result"},
		),

		CacheWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "currencylayer_cache_writes_total",
				Help: "Cache store writes by result",
			},
			[]string{"result"},
		),

		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "currencylayer_refreshes_total",
				Help: "Rate table rebuilds by trigger",
			},
			[]string{"mode"},
		),

		RateLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "currencylayer_rate_lookups_total",
				Help: "Pair rate resolutions by strategy",
			},
			[]string{"strategy"},
		),
	}
}

func (m *Metrics) FeedRequest(outcome string) {
	if m != nil {
		m.FeedRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CacheRead(result string) {
	if m != nil {
		m.CacheReadsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) CacheWrite(result string) {
	if m != nil {
		m.CacheWritesTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Refresh(mode string) {
	if m != nil {
		m.RefreshesTotal.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) RateLookup(strategy string) {
	if m != nil {
		m.RateLookupsTotal.WithLabelValues(strategy).Inc()
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}
