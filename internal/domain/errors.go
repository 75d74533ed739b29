package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Configuration errors abort a run before any command executes.
	ErrUnknownTask   = errors.New("unknown task")
	ErrMalformedTask = errors.New("malformed task registration")
	ErrRecursiveTask = errors.New("task invokes itself")
	ErrUnknownPhase  = errors.New("unknown event phase")

	// Runtime outcomes, recovered into verdicts by the executor.
	ErrCommandFailed = errors.New("command failed")
	ErrHalted        = errors.New("task halted")
	ErrListener      = errors.New("listener failed")

	// Deployment errors
	ErrDeploymentLocked   = errors.New("another deployment holds the lock")
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrNoPreviousRelease  = errors.New("no previous release to roll back to")
)

// UnknownTaskError names a task that is referenced but has neither a user
// registration nor a built-in default.
type UnknownTaskError struct {
	Name string
	// Caller is the task that referenced Name, empty for top-level runs.
	Caller string
}

func (e *UnknownTaskError) Error() string {
	if e.Caller != "" {
		return fmt.Sprintf("unknown task %q (referenced by %q)", e.Name, e.Caller)
	}
	return fmt.Sprintf("unknown task %q", e.Name)
}

func (e *UnknownTaskError) Unwrap() error { return ErrUnknownTask }

// RecursiveTaskError reports the invocation chain that re-entered a task.
type RecursiveTaskError struct {
	Chain []string
}

func (e *RecursiveTaskError) Error() string {
	return "task invokes itself: " + strings.Join(e.Chain, " -> ")
}

func (e *RecursiveTaskError) Unwrap() error { return ErrRecursiveTask }

// HaltError is an explicit, user-triggered failure.
type HaltError struct {
	Task    string
	Message string
}

func (e *HaltError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s halted", e.Task)
	}
	return fmt.Sprintf("task %s halted: %s", e.Task, e.Message)
}

func (e *HaltError) Unwrap() error { return ErrHalted }

// ListenerError wraps an error (or recovered panic) raised inside a listener.
// The owning task is halted with its message.
type ListenerError struct {
	Phase Phase
	Task  string
	Index int
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d on %s failed: %v", e.Index, EventKey(e.Phase, e.Task), e.Err)
}

func (e *ListenerError) Unwrap() []error { return []error{ErrListener, e.Err} }

// CommandError describes a command that exited non-zero or could not start.
type CommandError struct {
	Task   string
	Result CommandResult
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("task %s: %q exited with status %d", e.Task, e.Result.Command, e.Result.ExitCode)
	if out := strings.TrimSpace(e.Result.Stderr); out != "" {
		msg += ": " + lastLine(out)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
