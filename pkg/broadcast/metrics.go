package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "broadcast"
)

type Metrics struct {
	// Connected clients, one polling task each.
	Clients prometheus.Gauge
	// Order-book polls by outcome.
	Polls *prometheus.CounterVec
	// Time spent reading the order book for one poll.
	PollDuration prometheus.Histogram
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "clients",
			Help:      "Connected broadcast clients.",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "polls_total",
			Help:      "Order book polls by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "poll_duration_seconds",
			Help:      "Order book read latency per poll.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func PrometheusMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := newMetrics(namespace)
	reg.MustRegister(m.Clients, m.Polls, m.PollDuration)
	return m
}

func NopMetrics() *Metrics {
	return newMetrics("")
}
