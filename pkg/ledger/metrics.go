package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "ledger"
)

type Metrics struct {
	// Session acquisitions by outcome ("ok" or an error kind).
	Acquisitions *prometheus.CounterVec
	// Sessions currently holding a handle.
	OpenSessions prometheus.Gauge
	// Contract call latency by transaction, mode and outcome.
	CallDuration *prometheus.HistogramVec
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "session_acquisitions_total",
			Help:      "Ledger session acquisitions by outcome.",
		}, []string{"outcome"}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "open_sessions",
			Help:      "Ledger sessions currently holding a connection.",
		}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "call_duration_seconds",
			Help:      "Contract call latency.",
			Buckets:   []float64{.005, .02, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"tx", "mode", "outcome"}),
	}
}

// PrometheusMetrics registers the ledger metrics with reg.
func PrometheusMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := newMetrics(namespace)
	reg.MustRegister(m.Acquisitions, m.OpenSessions, m.CallDuration)
	return m
}

// NopMetrics returns collectors that are never exported.
func NopMetrics() *Metrics {
	return newMetrics("")
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k, ok := KindOf(err); ok {
		return k.String()
	}
	return "error"
}
