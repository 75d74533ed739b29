package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// CommandRunner executes one shell command in a working directory on the
// deployment target. A non-zero exit is reported in the result, not as an
// error; the error is reserved for commands that could not run at all.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string) (CommandResult, error)
}

// HistoryStore persists deployments and their task records.
type HistoryStore interface {
	BeginDeployment(d Deployment) error
	FinishDeployment(d Deployment) error
	RecordTask(rec TaskRecord) error
	GetDeployment(id string) (*Deployment, error)
	ListDeployments(limit int) ([]Deployment, error)
	ListTaskRecords(deploymentID string) ([]TaskRecord, error)
}
