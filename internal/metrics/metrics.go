// Package metrics exposes Prometheus collectors for engine activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DosesRecorded      prometheus.Counter
	DoseFailures       prometheus.Counter
	RemindersScheduled prometheus.Counter
	RemindersCancelled prometheus.Counter
	SchedulingFailures prometheus.Counter
	Resyncs            prometheus.Counter
	TransportErrors    prometheus.Counter
	LiveHandles        prometheus.Gauge
}

// New registers the engine collectors on the given registerer. Tests
// pass a private registry; the daemon passes the default one.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DosesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_doses_recorded_total",
			Help: "Dose-taken events successfully written to the backend.",
		}),
		DoseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_dose_failures_total",
			Help: "Dose-taken events that failed at the backend.",
		}),
		RemindersScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_reminders_scheduled_total",
			Help: "Reminder triggers created on the platform.",
		}),
		RemindersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_reminders_cancelled_total",
			Help: "Reminder triggers cancelled on the platform.",
		}),
		SchedulingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_scheduling_failures_total",
			Help: "Platform schedule calls rejected for non-permission reasons.",
		}),
		Resyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_resyncs_total",
			Help: "Reminder re-synchronization sweeps performed.",
		}),
		TransportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "medtrack_transport_errors_total",
			Help: "Backend calls that failed with a transport error.",
		}),
		LiveHandles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medtrack_live_reminder_handles",
			Help: "Reminder handles currently believed live.",
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests
// that do not assert on collector state.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
