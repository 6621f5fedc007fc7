// Package metrics exposes Prometheus collectors for the core's ambient
// observability surface: EM restarts, PHM violations, persistency quota
// rejections, and live transport subscription counts. No HTTP exporter
// is wired here — see DESIGN.md — these are plain collectors an embedder
// registers under its own handler, the way observability/metrics.go
// leaves registration to RegisterMetrics() and recording to the call
// sites that own the event.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	emRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "em",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Total supervised child process restarts.",
		},
		[]string{"app_id"},
	)
	phmViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "em",
			Subsystem: "phm",
			Name:      "violations_total",
			Help:      "Total supervision violations reported by the PHM supervisor.",
		},
		[]string{"app_id"},
	)
	persistencyQuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "em",
			Subsystem: "persistency",
			Name:      "quota_rejections_total",
			Help:      "Total writes rejected for exceeding configured quota.",
		},
		[]string{"instance_spec", "kind"},
	)
	transportSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "em",
			Subsystem: "transport",
			Name:      "active_subscriptions",
			Help:      "Live event subscriptions held by the transport binding.",
		},
		[]string{"service", "instance", "event"},
	)
)

// Register registers all collectors exactly once per process.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(emRestarts, phmViolations, persistencyQuotaRejections, transportSubscriptions)
	})
}

// RecordRestart increments the restart counter for the given app.
func RecordRestart(appID string) {
	Register()
	emRestarts.WithLabelValues(appID).Inc()
}

// RecordViolation increments the violation counter for the given app.
func RecordViolation(appID string) {
	Register()
	phmViolations.WithLabelValues(appID).Inc()
}

// RecordQuotaRejection increments the quota-rejection counter for a
// storage instance. kind is "kv" or "files".
func RecordQuotaRejection(instanceSpec, kind string) {
	Register()
	persistencyQuotaRejections.WithLabelValues(instanceSpec, kind).Inc()
}

// SetSubscriptionCount publishes the number of bindings currently
// subscribed to one (service, instance, event) tuple.
func SetSubscriptionCount(service, instance, event string, count int) {
	Register()
	transportSubscriptions.WithLabelValues(service, instance, event).Set(float64(count))
}
