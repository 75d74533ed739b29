package app

import (
	"log"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
	"github.com/guoyu07/rocketeer/internal/infra/metrics"
)

// ─── History ────────────────────────────────────────────────────────────────

// HistoryRecorder persists runs and task results to a HistoryStore. Storage
// errors are logged and never fail a deployment.
type HistoryRecorder struct {
	store domain.HistoryStore
	logf  func(format string, args ...any)
}

// NewHistoryRecorder creates a recorder writing to store.
func NewHistoryRecorder(store domain.HistoryStore) *HistoryRecorder {
	return &HistoryRecorder{store: store, logf: log.Printf}
}

// DeploymentStarted implements orchestrator.Observer.
func (h *HistoryRecorder) DeploymentStarted(d domain.Deployment) {
	if err := h.store.BeginDeployment(d); err != nil {
		h.logf("[history] begin %s: %v", d.ID, err)
	}
}

// TaskFinished implements orchestrator.Observer.
func (h *HistoryRecorder) TaskFinished(d domain.Deployment, r orchestrator.Result) {
	if err := h.store.RecordTask(r.Record(d.ID)); err != nil {
		h.logf("[history] record %s/%s: %v", d.ID, r.Task, err)
	}
}

// DeploymentFinished implements orchestrator.Observer.
func (h *HistoryRecorder) DeploymentFinished(d domain.Deployment) {
	if err := h.store.FinishDeployment(d); err != nil {
		h.logf("[history] finish %s: %v", d.ID, err)
	}
}

// ─── Metrics ────────────────────────────────────────────────────────────────

// MetricsRecorder feeds run outcomes into the Prometheus collectors.
type MetricsRecorder struct{}

// DeploymentStarted implements orchestrator.Observer.
func (MetricsRecorder) DeploymentStarted(domain.Deployment) {
	metrics.DeploymentsActive.Inc()
}

// TaskFinished implements orchestrator.Observer.
func (MetricsRecorder) TaskFinished(_ domain.Deployment, r orchestrator.Result) {
	failed := 0
	for _, c := range r.Commands {
		if !c.OK() {
			failed++
		}
	}
	metrics.ObserveTask(r.Task, string(r.Verdict), r.Duration, len(r.Commands), failed)
}

// DeploymentFinished implements orchestrator.Observer.
func (MetricsRecorder) DeploymentFinished(d domain.Deployment) {
	metrics.DeploymentsActive.Dec()
	metrics.ObservePipeline(d.Pipeline, string(d.Verdict), d.Duration(), d.FinishedAt, d.Verdict.OK())
}

// ListenerHalted implements orchestrator.HaltObserver.
func (MetricsRecorder) ListenerHalted(phase domain.Phase, _ string) {
	metrics.ListenerHalts.WithLabelValues(string(phase)).Inc()
}
