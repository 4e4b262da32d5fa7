// Package metrics holds the runtime's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HubRequestsTotal counts hub calls by operation and HTTP status.
	HubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_hub_requests_total",
			Help: "Total number of requests sent to the hub",
		},
		[]string{"operation", "status"},
	)

	// HubRequestDuration tracks hub call latency.
	HubRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrt_hub_request_duration_seconds",
			Help:    "Hub request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// PollAttempts counts polling attempts by outcome (done, pending, error).
	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_poll_attempts_total",
			Help: "Total number of polling attempts",
		},
		[]string{"outcome"},
	)

	// AgentRuns counts finished agent invocations.
	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_agent_runs_total",
			Help: "Total number of agent invocations by final status",
		},
		[]string{"status"},
	)

	// AgentCompileDuration tracks how long compiling one agent source takes.
	AgentCompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentrt_agent_compile_duration_seconds",
			Help:    "Agent source compile duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
)

// RecordHubRequest records one hub call. status is the HTTP status code, or
// 0 when the request never got a response.
func RecordHubRequest(operation string, status int, duration time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	HubRequestsTotal.WithLabelValues(operation, label).Inc()
	HubRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPollAttempt is shaped to plug into poll.Options.OnAttempt.
func RecordPollAttempt(outcome string) {
	PollAttempts.WithLabelValues(outcome).Inc()
}

// RecordAgentRun counts a finished agent run.
func RecordAgentRun(status string) {
	AgentRuns.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
