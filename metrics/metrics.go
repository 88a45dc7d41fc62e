// Package metrics exposes the Prometheus collectors updated by the lock
// manager and the guard.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultAcquired  = "acquired"
	ResultTakeover  = "takeover"
	ResultContended = "contended"
	ResultError     = "error"

	ResultReleased = "released"
	ResultNotOwner = "not_owner"
	ResultAbsent   = "absent"

	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultSuccess  = "success"
)

var (
	// AcquireCounter counts acquire attempts by result.
	AcquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodup_lock_acquire_total",
		Help: "Total number of lock acquire attempts",
	}, []string{"result"})
	// ReleaseCounter counts release attempts by result.
	ReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodup_lock_release_total",
		Help: "Total number of lock release attempts",
	}, []string{"result"})
	// DelayedReleaseGauge reports the number of scheduled releases not yet run.
	DelayedReleaseGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodup_lock_delayed_releases",
		Help: "Current number of pending delayed releases",
	})
	// ScheduleFailureCounter counts delayed releases that could not be scheduled.
	ScheduleFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodup_lock_schedule_failures_total",
		Help: "Total number of delayed releases that could not be scheduled",
	})
	// GuardCounter counts guarded calls by operation and outcome.
	GuardCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodup_guard_calls_total",
		Help: "Total number of guarded calls",
	}, []string{"operation", "result"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterMetrics registers all go-nodup collectors on the provided registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ReleaseCounter, DelayedReleaseGauge, ScheduleFailureCounter, GuardCounter)
}
