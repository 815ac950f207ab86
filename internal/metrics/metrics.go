package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	entries          *prometheus.CounterVec
	shiftTransitions *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caixa",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries recorded, by kind.",
		}, []string{"kind"}),
		shiftTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caixa",
			Name:      "shift_transitions_total",
			Help:      "Shift lifecycle transitions, by action.",
		}, []string{"action"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caixa",
			Name:      "reconciliation_cache_lookups_total",
			Help:      "Reconciliation cache lookups, by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caixa",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.entries,
		m.shiftTransitions,
		m.cacheLookups,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EntryRecorded(kind string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(kind).Inc()
}

func (m *Metrics) ShiftTransition(action string) {
	if m == nil {
		return
	}
	m.shiftTransitions.WithLabelValues(action).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
