package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is private to the service so tests and embedders do not collide
// with the global default registerer.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(StepDuration, StatusChecks, RunsTotal, RunsActive)
}

// StepDuration is wall time per attempted step, submit through terminal state.
var StepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mediaflow_step_duration_seconds",
		Help:    "Step execution time in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
	},
	[]string{"tool", "status"}, // complete | error
)

// StatusChecks counts provider status checks by outcome.
var StatusChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mediaflow_status_checks_total",
		Help: "Provider job status checks",
	},
	[]string{"tool", "outcome"}, // ok | error
)

var RunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mediaflow_runs_total",
		Help: "Finished runs by final status",
	},
	[]string{"status"}, // success | error | canceled
)

var RunsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "mediaflow_runs_active",
	Help: "Runs currently executing",
})

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
