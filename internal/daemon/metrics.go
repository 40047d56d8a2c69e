package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler returns the standard promhttp handler for exposing Metrics on a
// /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics are the daemon-wide Prometheus counters/gauges exposed alongside
// the Control Server. No example in the retrieved pack registers metrics
// outside of test code, so this is grounded directly on the client_golang
// promauto API rather than a specific teacher file.
var Metrics = struct {
	EvaluationsTotal *prometheus.CounterVec
	DispatchesTotal  *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	RunningLoops     prometheus.Gauge
}{
	EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertd_evaluations_total",
		Help: "Total number of alert evaluations run, by file.",
	}, []string{"file"}),
	DispatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertd_dispatches_total",
		Help: "Total number of dispatch attempts, by target kind and outcome.",
	}, []string{"target", "outcome"}),
	SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertd_source_errors_total",
		Help: "Total number of source runner errors, by file.",
	}, []string{"file"}),
	RunningLoops: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alertd_running_loops",
		Help: "Number of currently running per-alert tick loops.",
	}),
}
