// Package metrics exposes the Prometheus instrumentation shared by the
// engine, the live stream, and the HTTP layer.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds every driftwatch metric.
type Registry struct {
	reg *prometheus.Registry

	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	AnomaliesDetected *prometheus.CounterVec
	StreamEvents      *prometheus.CounterVec
	StreamSubscribers prometheus.Gauge
	StreamDropped     prometheus.Counter
	DBQueries         *prometheus.CounterVec
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a registry with all driftwatch metrics registered.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftwatch_analyses_total",
		Help: "Batch analyses by outcome",
	}, []string{"status"})

	r.AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftwatch_analysis_duration_seconds",
		Help:    "End-to-end batch analysis duration",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	r.AnomaliesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftwatch_anomalies_detected_total",
		Help: "Anomalies flagged by detection method",
	}, []string{"method"})

	r.StreamEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftwatch_stream_events_total",
		Help: "Live stream events emitted, by flagged state",
	}, []string{"flagged"})

	r.StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driftwatch_stream_subscribers",
		Help: "Currently attached live stream subscribers",
	})

	r.StreamDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftwatch_stream_dropped_total",
		Help: "Subscribers dropped for not keeping up",
	})

	r.DBQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftwatch_db_queries_total",
		Help: "Source database queries by outcome",
	}, []string{"status"})

	r.reg.MustRegister(
		r.AnalysesTotal, r.AnalysisDuration, r.AnomaliesDetected,
		r.StreamEvents, r.StreamSubscribers, r.StreamDropped, r.DBQueries,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Snapshot gathers the current metric families, for health payloads and
// tests.
func (r *Registry) Snapshot() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// CounterValue digs a single counter value out of a gathered snapshot.
// Missing metrics read as zero.
func CounterValue(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if !labelsMatch(m, labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	have := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		have[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
