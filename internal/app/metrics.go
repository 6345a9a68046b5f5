package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rina_cycles_total",
			Help: "Completed publish and notification cycles by result.",
		},
		[]string{"cycle", "result"},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rina_cycle_duration_seconds",
			Help:    "Cycle duration in seconds, including pauses between notifications.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"cycle"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rina_notifications_total",
			Help: "Classified notifications by decision.",
		},
		[]string{"decision"},
	)

	relayRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rina_relay_restarts_total",
			Help: "Chat relay restarts after a failure.",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(relayRestartsTotal)
}

// CountRelayRestart is the chat.SupervisorOptions.OnRestart hook
func CountRelayRestart() {
	relayRestartsTotal.Inc()
}
