// Package domain holds the pure types shared by the orchestrator and its
// infrastructure: verdicts, task states, event phases, command results and
// deployment records.
//
// A task flows through: pending → before fired → running → verdict → after fired → done.
package domain

import (
	"strings"
	"time"
)

// Verdict is the resolved outcome of one task invocation.
type Verdict string

const (
	VerdictSuccess Verdict = "SUCCESS"
	VerdictFailure Verdict = "FAILURE"
	VerdictHalted  Verdict = "HALTED"
)

// OK reports whether the verdict lets a pipeline continue.
func (v Verdict) OK() bool { return v == VerdictSuccess }

// TaskState tracks a single invocation through the executor.
type TaskState string

const (
	TaskPending     TaskState = "PENDING"
	TaskBeforeFired TaskState = "BEFORE_FIRED"
	TaskRunning     TaskState = "RUNNING"
	TaskSucceeded   TaskState = "SUCCEEDED"
	TaskFailed      TaskState = "FAILED"
	TaskHalted      TaskState = "HALTED"
	TaskAfterFired  TaskState = "AFTER_FIRED"
	TaskDone        TaskState = "DONE"
)

// Phase is a lifecycle point events are published at.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
	PhaseError  Phase = "error"
	PhaseInit   Phase = "init"
)

// EventKey renders the canonical "<phase>.<task>" key.
func EventKey(phase Phase, task string) string {
	return string(phase) + "." + task
}

// ParseEventKey splits "before.swap-symlink" into its phase and task.
func ParseEventKey(key string) (Phase, string, bool) {
	phase, task, ok := strings.Cut(key, ".")
	if !ok || phase == "" || task == "" {
		return "", "", false
	}
	return Phase(phase), task, true
}

// Scope selects the working directory a command runs in.
type Scope string

const (
	ScopeRoot    Scope = "root"
	ScopeRelease Scope = "release"
)

// CommandResult captures one executed command.
type CommandResult struct {
	Command  string        `json:"command"`
	Dir      string        `json:"dir"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// OK reports a zero exit status.
func (r CommandResult) OK() bool { return r.ExitCode == 0 }

// TaskRecord is the persisted form of a finished task invocation.
type TaskRecord struct {
	DeploymentID string        `json:"deployment_id"`
	Task         string        `json:"task"`
	Parent       string        `json:"parent,omitempty"`
	Depth        int           `json:"depth"`
	Verdict      Verdict       `json:"verdict"`
	Message      string        `json:"message,omitempty"`
	ExitCode     int           `json:"exit_code"`
	Commands     int           `json:"commands"`
	Output       string        `json:"output,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}
