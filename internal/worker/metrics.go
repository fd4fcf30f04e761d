// Package worker runs the background loops of the review engine: the
// notification dispatcher and the deadline monitor.
//
// Both loops coordinate with the request path only through persisted rows.
// A tick runs to completion once started; cancellation is observed between
// ticks.
package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	// dispatched counts delivery attempts by result (sent|failed).
	dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification delivery attempts by result.",
		},
		[]string{"result"},
	)

	// reminders counts deadline reminders queued by kind (upcoming|overdue).
	reminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deadline_reminders_total",
			Help: "Deadline reminders queued by kind.",
		},
		[]string{"kind"},
	)

	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_tick_duration_seconds",
			Help:    "Duration of background worker ticks in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"worker"},
	)
)

func init() {
	prometheus.MustRegister(dispatched, reminders, tickDuration)
}
