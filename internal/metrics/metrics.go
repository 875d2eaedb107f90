package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_dispatch_total",
			Help: "Lifecycle sub-dispatches by event kind, path and status",
		},
		[]string{"kind", "path", "status"}, // email|conversion , sent|failed|skipped
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboard_dispatch_duration_seconds",
			Help:    "End-to-end router dispatch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EmailAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_email_attempts_total",
			Help: "Email provider attempts by provider and result",
		},
		[]string{"provider", "result"}, // sent|failed|skipped|circuit_open
	)

	ConversionReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_conversion_reports_total",
			Help: "Conversion reports by standard event and result",
		},
		[]string{"event", "result"},
	)

	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_validation_failures_total",
			Help: "Lifecycle events rejected before dispatch",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors; repeated calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			DispatchTotal,
			DispatchDuration,
			EmailAttempts,
			ConversionReports,
			ValidationFailures,
		)
	})
}
