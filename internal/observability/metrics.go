// Package observability provides Prometheus metrics for the optimization pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "walletopt"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry.
type Metrics struct {
	// Pipeline
	Requests *prometheus.CounterVec

	// Cache
	CacheLookups *prometheus.CounterVec

	// Oracle
	OracleCalls   *prometheus.CounterVec
	OracleLatency prometheus.Histogram
	YieldLookups  *prometheus.CounterVec

	// Guard
	GuardDrops *prometheus.CounterVec

	// Quotes
	QuoteResults *prometheus.CounterVec
	QuoteLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. A nil reg uses a fresh private
// registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Optimization requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Recommendation cache lookups by result",
		}, []string{"result"}),
		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Reasoning oracle invocations by outcome",
		}, []string{"outcome"}),
		OracleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Reasoning oracle latency including bounded retries",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		YieldLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "yield_store",
			Name:      "lookups_total",
			Help:      "Yield store queries by outcome",
		}, []string{"outcome"}),
		GuardDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "dropped_total",
			Help:      "Oracle proposals removed by the action guard",
		}, []string{"reason"}),
		QuoteResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "results_total",
			Help:      "Aggregator calls by stage and outcome",
		}, []string{"stage", "outcome"}),
		QuoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "latency_seconds",
			Help:      "Aggregator call latency by stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		gatherer: reg,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordOracleCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(outcome).Inc()
	m.OracleLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordYieldLookup(outcome string) {
	if m == nil {
		return
	}
	m.YieldLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGuardDrop(reason string) {
	if m == nil {
		return
	}
	m.GuardDrops.WithLabelValues(reason).Inc()
}

// RecordQuote stage is "quote" or "swap".
func (m *Metrics) RecordQuote(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QuoteResults.WithLabelValues(stage, outcome).Inc()
	m.QuoteLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}
