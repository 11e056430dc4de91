package sync

import "github.com/VictoriaMetrics/metrics"

// Engine counters, exposed on /metrics in Prometheus format
var (
	stepsTotal       = metrics.NewCounter("roomsync_steps_total")
	stepFailures     = metrics.NewCounter("roomsync_step_failures_total")
	mutationsApplied = metrics.NewCounter("roomsync_mutations_applied_total")
	mutationErrors   = metrics.NewCounter("roomsync_mutator_errors_total")
	pokesSent        = metrics.NewCounter("roomsync_pokes_sent_total")
	pokesDropped     = metrics.NewCounter("roomsync_pokes_dropped_total")
)
