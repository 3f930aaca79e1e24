// Package metrics holds the Prometheus collectors shared by the adapters,
// the orchestrator and the HTTP server. Collectors are registered with the
// default registry on package initialisation so /metrics exposes them without
// further wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	adapterCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverart_adapter_calls_total",
		Help: "Adapter operations partitioned by service, operation and outcome.",
	}, []string{"service", "op", "outcome"})

	adapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverart_adapter_call_duration_seconds",
		Help:    "Time spent inside adapter operations.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"service", "op"})

	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverart_sessions_total",
		Help: "Search sessions by final outcome.",
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coverart_sessions_active",
		Help: "Search sessions that have not reached a terminal state.",
	})

	imagesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverart_images_resolved_total",
		Help: "Resolved images by service and whether they passed the size filter.",
	}, []string{"service", "accepted"})

	saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverart_saves_total",
		Help: "Images written to disk by outcome.",
	}, []string{"outcome"})
)

// ObserveAdapterCall records one adapter operation.
func ObserveAdapterCall(service, op, outcome string, took time.Duration) {
	adapterCalls.WithLabelValues(service, op, outcome).Inc()
	adapterDuration.WithLabelValues(service, op).Observe(took.Seconds())
}

// SessionStarted increments the active session gauge.
func SessionStarted() { activeSessions.Inc() }

// SessionEnded decrements the active session gauge and counts the outcome.
func SessionEnded(outcome string) {
	activeSessions.Dec()
	sessions.WithLabelValues(outcome).Inc()
}

// ImageResolved counts a resolved image.
func ImageResolved(service string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	imagesResolved.WithLabelValues(service, label).Inc()
}

// Saved counts a save attempt.
func Saved(err error) {
	if err != nil {
		saves.WithLabelValues("error").Inc()
		return
	}
	saves.WithLabelValues("ok").Inc()
}
