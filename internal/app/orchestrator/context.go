package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// runState is shared by every task invocation of one top-level run.
type runState struct {
	deployment domain.Deployment
	paths      domain.Paths
	stack      []string
	results    []Result
}

func (r *runState) push(name string) error {
	for _, n := range r.stack {
		if n == name {
			chain := append(append([]string{}, r.stack...), name)
			return &domain.RecursiveTaskError{Chain: chain}
		}
	}
	r.stack = append(r.stack, name)
	return nil
}

func (r *runState) pop() { r.stack = r.stack[:len(r.stack)-1] }

// Context is the execution context handed to task bodies and listeners. One
// Context exists per task invocation; the task's listeners share it.
type Context struct {
	ctx    context.Context
	orch   *Orchestrator
	run    *runState
	task   string
	parent *Context
	depth  int
	phase  domain.Phase

	commands []domain.CommandResult
	lastExit int

	halted    bool
	haltMsg   string
	haltErr   error
	haltPhase domain.Phase

	nested  *Result
	verdict domain.Verdict
	fatal   error
}

// Context returns the context.Context commands run under.
func (c *Context) Context() context.Context { return c.ctx }

// Task returns the name of the task this context belongs to.
func (c *Context) Task() string { return c.task }

// Parent returns the name of the invoking task, empty at top level.
func (c *Context) Parent() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.task
}

// Depth is 0 for top-level tasks and grows by one per nesting level.
func (c *Context) Depth() int { return c.depth }

// Phase is the event phase being published, empty while the body runs.
func (c *Context) Phase() domain.Phase { return c.phase }

// Paths returns the root and release directories of this run.
func (c *Context) Paths() domain.Paths { return c.run.paths }

// Deployment returns the deployment this invocation belongs to.
func (c *Context) Deployment() domain.Deployment { return c.run.deployment }

// Settings returns the orchestrator's deployment settings.
func (c *Context) Settings() Settings { return c.orch.settings }

// Verdict is the task's verdict; only set while after/error listeners run.
func (c *Context) Verdict() domain.Verdict { return c.verdict }

// Halted reports whether Halt was called.
func (c *Context) Halted() bool { return c.halted }

// HaltMessage returns the message of the first halt.
func (c *Context) HaltMessage() string { return c.haltMsg }

// Output returns every command this task ran so far, listeners included.
func (c *Context) Output() []domain.CommandResult {
	return append([]domain.CommandResult(nil), c.commands...)
}

// LastResult returns the most recent command result.
func (c *Context) LastResult() (domain.CommandResult, bool) {
	if len(c.commands) == 0 {
		return domain.CommandResult{}, false
	}
	return c.commands[len(c.commands)-1], true
}

// LastExitStatusOK reports whether the last command the body ran exited 0.
// It is true when nothing has run yet.
func (c *Context) LastExitStatusOK() bool { return c.lastExit == 0 }

// Logf writes through the orchestrator's logger, prefixed with the task name.
func (c *Context) Logf(format string, args ...any) {
	c.orch.logf("[%s] %s", c.task, fmt.Sprintf(format, args...))
}

// RunInRoot runs commands in the root directory.
func (c *Context) RunInRoot(commands ...string) bool {
	return c.Run(domain.ScopeRoot, commands...)
}

// RunInRelease runs commands in the current release directory.
func (c *Context) RunInRelease(commands ...string) bool {
	return c.Run(domain.ScopeRelease, commands...)
}

// Run executes commands in order in the directory selected by scope, stopping
// at the first non-zero exit. Nothing runs once the task is halted. It
// returns LastExitStatusOK.
func (c *Context) Run(scope domain.Scope, commands ...string) bool {
	dir := c.dir(scope)
	for _, cmd := range commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if c.stopped() {
			break
		}
		if err := c.ctx.Err(); err != nil {
			c.Halt("cancelled: " + err.Error())
			break
		}

		c.orch.debugf("[executor] %s$ %s", c.task, cmd)
		res, err := c.orch.runner.Run(c.ctx, dir, cmd)
		if res.Command == "" {
			res.Command = cmd
		}
		if res.Dir == "" {
			res.Dir = dir
		}
		if err != nil {
			if res.ExitCode == 0 {
				res.ExitCode = -1
			}
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
		c.commands = append(c.commands, res)
		c.lastExit = res.ExitCode

		if err != nil && c.ctx.Err() != nil {
			c.Halt("cancelled: " + c.ctx.Err().Error())
			break
		}
		if !res.OK() {
			c.orch.debugf("[executor] %s: %q exited %d", c.task, cmd, res.ExitCode)
			break
		}
	}
	return c.LastExitStatusOK()
}

// Halt fails the task explicitly with message. The first halt wins; nothing
// else runs for this task or its pipeline.
func (c *Context) Halt(message string) {
	c.haltWith(message, &domain.HaltError{Task: c.task, Message: message})
}

// Haltf is Halt with formatting.
func (c *Context) Haltf(format string, args ...any) {
	c.Halt(fmt.Sprintf(format, args...))
}

// RunTask runs another task through the executor. If it does not succeed,
// this task stops too and takes over the nested verdict.
func (c *Context) RunTask(name string) Result {
	return c.runNested(name, true)
}

func (c *Context) runNested(name string, propagate bool) Result {
	if c.stopped() {
		return Result{
			Task:    Slug(name),
			Parent:  c.task,
			Depth:   c.depth + 1,
			Verdict: domain.VerdictHalted,
			Message: fmt.Sprintf("not run: %s already stopped", c.task),
			Skipped: true,
		}
	}

	res, err := c.orch.execute(c.ctx, c.run, c, name)
	if err != nil {
		c.fatal = err
		res.Verdict = domain.VerdictFailure
		res.Err = err
		res.Message = err.Error()
		return res
	}
	if !res.OK() && (propagate || res.Verdict == domain.VerdictHalted) && c.nested == nil {
		nested := res
		c.nested = &nested
	}
	return res
}

func (c *Context) haltWith(message string, err error) {
	if c.halted {
		return
	}
	c.halted = true
	c.haltMsg = message
	c.haltErr = err
	c.haltPhase = c.phase
}

func (c *Context) stopped() bool {
	return c.halted || c.fatal != nil || c.nested != nil
}

func (c *Context) resetExit() { c.lastExit = 0 }

func (c *Context) dir(scope domain.Scope) string {
	if scope == domain.ScopeRoot {
		return c.run.paths.Root
	}
	return c.run.paths.Release
}
