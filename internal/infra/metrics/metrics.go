// Package metrics provides Prometheus metrics for rocketeer: task and
// pipeline outcomes, command execution, listener halts and health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskRuns counts finished task invocations by task and verdict.
var TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "task_runs_total",
	Help:      "Total finished task invocations.",
}, []string{"task", "verdict"})

// TaskDuration tracks task duration in seconds, listeners included.
var TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rocketeer",
	Name:      "task_duration_seconds",
	Help:      "Task duration in seconds.",
	Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
}, []string{"task"})

// CommandsExecuted counts shell commands run on behalf of a task.
var CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "commands_executed_total",
	Help:      "Total shell commands executed.",
}, []string{"task"})

// CommandsFailed counts commands that exited non-zero.
var CommandsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "commands_failed_total",
	Help:      "Total shell commands that exited non-zero.",
}, []string{"task"})

// ─── Pipelines ──────────────────────────────────────────────────────────────

// PipelineRuns counts finished pipeline runs by pipeline and verdict.
var PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "pipeline_runs_total",
	Help:      "Total finished pipeline runs.",
}, []string{"pipeline", "verdict"})

// PipelineDuration tracks whole-pipeline duration in seconds.
var PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rocketeer",
	Name:      "pipeline_duration_seconds",
	Help:      "Pipeline duration in seconds.",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
}, []string{"pipeline"})

// DeploymentsActive tracks runs currently in progress.
var DeploymentsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "rocketeer",
	Name:      "deployments_active",
	Help:      "Number of runs in progress.",
})

// LastSuccess records the Unix time of the last successful run per pipeline.
var LastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "rocketeer",
	Name:      "last_success_timestamp_seconds",
	Help:      "Unix time of the last successful run.",
}, []string{"pipeline"})

// ─── Events ─────────────────────────────────────────────────────────────────

// ListenerHalts counts halts raised by listeners, by phase.
var ListenerHalts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "listener_halts_total",
	Help:      "Total task halts raised by event listeners.",
}, []string{"phase"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "rocketeer",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries counts recovery actions by check.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rocketeer",
	Name:      "health_recoveries_total",
	Help:      "Total health recovery actions.",
}, []string{"check"})

// ─── Helpers ────────────────────────────────────────────────────────────────

// ObserveTask records one finished task invocation.
func ObserveTask(task, verdict string, d time.Duration, commands, failed int) {
	TaskRuns.WithLabelValues(task, verdict).Inc()
	TaskDuration.WithLabelValues(task).Observe(d.Seconds())
	if commands > 0 {
		CommandsExecuted.WithLabelValues(task).Add(float64(commands))
	}
	if failed > 0 {
		CommandsFailed.WithLabelValues(task).Add(float64(failed))
	}
}

// ObservePipeline records one finished run.
func ObservePipeline(pipeline, verdict string, d time.Duration, finishedAt time.Time, ok bool) {
	PipelineRuns.WithLabelValues(pipeline, verdict).Inc()
	PipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	if ok {
		LastSuccess.WithLabelValues(pipeline).Set(float64(finishedAt.Unix()))
	}
}

// SetHealth records the outcome of a health check.
func SetHealth(check string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	HealthCheckStatus.WithLabelValues(check).Set(v)
}
