package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "http"
)

type Metrics struct {
	// Requests by route template, method and status code.
	Requests *prometheus.CounterVec
	// Request latency by route template.
	Duration *prometheus.HistogramVec
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func PrometheusMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := newMetrics(namespace)
	reg.MustRegister(m.Requests, m.Duration)
	return m
}

func NopMetrics() *Metrics {
	return newMetrics("")
}
