// Package metrics holds the Prometheus collectors for the intake pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkflowsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_workflows_started_total",
			Help: "Workflows started through the intake endpoint",
		},
		[]string{"workflow"},
	)

	PollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_poll_attempts_total",
			Help: "Status requests made while waiting on document processing",
		},
		[]string{"status"},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_poll_duration_seconds",
			Help:    "Time from first status request to a terminal status",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	PackagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_packages_fetched_total",
			Help: "Data package fetches by package and outcome",
		},
		[]string{"package", "outcome"},
	)

	AgentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_agent_calls_total",
			Help: "Agent queries by agent and outcome",
		},
		[]string{"agent", "outcome"},
	)

	AgentCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_agent_call_duration_seconds",
			Help:    "Agent query latency",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	Saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_saves_total",
			Help: "Persistence saves by transaction type and outcome",
		},
		[]string{"transaction_type", "outcome"},
	)

	CasePushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_case_pushes_total",
			Help: "Pushes to case management by outcome",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			WorkflowsStarted,
			PollAttempts,
			PollDuration,
			PackagesFetched,
			AgentCalls,
			AgentCallDuration,
			Saves,
			CasePushes,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeNoOp     = "no_op"
	OutcomeNotFound = "not_found"
)

// ObserveAgentCall records one agent query.
func ObserveAgentCall(agent string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	AgentCalls.WithLabelValues(agent, outcome).Inc()
	AgentCallDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}
