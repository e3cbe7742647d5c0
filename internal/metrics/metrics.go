package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by the page cache and the
// call recorder. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheLookups *prometheus.CounterVec
	FetchErrors  prometheus.Counter
	Calls        *prometheus.CounterVec
	CallErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webcache_page_lookups_total",
		Help: "Page cache lookups by result",
	}, []string{"result"})

	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webcache_fetch_errors_total",
		Help: "Underlying fetches that failed and were not cached",
	})

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webcache_instrumented_calls_total",
		Help: "Invocations entered per instrumented operation",
	}, []string{"operation"})

	callErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webcache_instrumented_call_errors_total",
		Help: "Invocations per operation that returned an error",
	}, []string{"operation"})

	reg.MustRegister(cacheLookups, fetchErrors, calls, callErrors)

	return &Metrics{
		CacheLookups: cacheLookups,
		FetchErrors:  fetchErrors,
		Calls:        calls,
		CallErrors:   callErrors,
	}
}

func (m *Metrics) Hit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) Miss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.FetchErrors.Inc()
	}
}

func (m *Metrics) Call(op string, err error) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(op).Inc()
	if err != nil {
		m.CallErrors.WithLabelValues(op).Inc()
	}
}
