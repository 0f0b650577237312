package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoohub_events_total",
			Help: "Events lifecycle counter by stage",
		},
		[]string{"stage"}, // accepted|deduped|dispatched|failed
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoohub_jobs_total",
			Help: "Jobs lifecycle counter by stage and kind",
		},
		[]string{"stage", "kind"}, // created|succeeded|retried|dead , EMAIL|WEBHOOK
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoohub_job_attempts_total",
			Help: "Job execution attempts by outcome and kind",
		},
		[]string{"outcome", "kind"}, // succeeded|failed , EMAIL|WEBHOOK
	)

	CircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoohub_circuit_transitions_total",
			Help: "Webhook circuit breaker state transitions",
		},
		[]string{"to"}, // OPEN|HALF_OPEN|CLOSED
	)

	CircuitShortCircuitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zoohub_circuit_short_circuits_total",
			Help: "Webhook calls skipped because the target circuit was not CLOSED",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		JobsTotal,
		AttemptsTotal,
		CircuitTransitionsTotal,
		CircuitShortCircuitsTotal,
	)
}
