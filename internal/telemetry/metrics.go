package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizdash_phase_transitions_total",
		Help: "Game phase transitions applied, by from/to phase.",
	}, []string{"from", "to"})

	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizdash_answers_submitted_total",
		Help: "Answer submissions accepted, by correctness.",
	}, []string{"correct"})

	CountdownWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizdash_countdown_write_failures_total",
		Help: "Countdown ticks whose store write failed and was left for the next tick.",
	})
)
