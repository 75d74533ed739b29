package orchestrator

import (
	"fmt"
	"strings"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Body is the executable part of a task or listener.
//
// Three shapes exist: Commands (an ordered list of shell commands), Func (a
// closure) and Instance (a value implementing Executable).
type Body interface {
	Invoke(c *Context) (Outcome, error)
}

// Describer is optionally implemented by bodies that can summarise themselves
// for the task catalogue.
type Describer interface {
	Description() string
}

// ─── Commands ───────────────────────────────────────────────────────────────

// Commands runs each line in order, stopping at the first non-zero exit.
// The verdict is always inherited from the last executed command.
type Commands struct {
	// Scope defaults to the release directory, like string tasks.
	Scope domain.Scope
	Lines []string
}

// Command builds a release-scoped Commands body.
func Command(lines ...string) Commands {
	return Commands{Scope: domain.ScopeRelease, Lines: lines}
}

// RootCommand builds a root-scoped Commands body.
func RootCommand(lines ...string) Commands {
	return Commands{Scope: domain.ScopeRoot, Lines: lines}
}

// Invoke implements Body.
func (b Commands) Invoke(c *Context) (Outcome, error) {
	c.Run(b.Scope, b.Lines...)
	return Inherit(), nil
}

// Description implements Describer.
func (b Commands) Description() string {
	return strings.Join(b.Lines, " && ")
}

// ─── Func ───────────────────────────────────────────────────────────────────

// Func adapts a closure to Body.
type Func func(c *Context) Outcome

// Invoke implements Body.
func (f Func) Invoke(c *Context) (Outcome, error) {
	return f(c), nil
}

// ErrFunc adapts a closure that can fail with an error.
type ErrFunc func(c *Context) (Outcome, error)

// Invoke implements Body.
func (f ErrFunc) Invoke(c *Context) (Outcome, error) {
	return f(c)
}

// ─── Instance ───────────────────────────────────────────────────────────────

// Executable is implemented by task types (the "class instance" shape).
// The returned value goes through Coerce: nil inherits the last exit status,
// anything else decides the verdict.
type Executable interface {
	Execute(c *Context) (any, error)
}

// Instance adapts an Executable to Body.
type Instance struct {
	Task Executable
}

// Invoke implements Body.
func (i Instance) Invoke(c *Context) (Outcome, error) {
	if i.Task == nil {
		return Inherit(), fmt.Errorf("%w: nil executable", domain.ErrMalformedTask)
	}
	v, err := i.Task.Execute(c)
	return Coerce(v), err
}

// Description implements Describer when the wrapped task does.
func (i Instance) Description() string {
	if d, ok := i.Task.(Describer); ok {
		return d.Description()
	}
	return fmt.Sprintf("%T", i.Task)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// described attaches a catalogue description to a body.
type described struct {
	Body
	text string
}

func (d described) Description() string { return d.text }

// Describe wraps b so the catalogue shows text.
func Describe(b Body, text string) Body {
	return described{Body: b, text: text}
}

// Noop is the default body of core tasks that do nothing until overridden.
var Noop Body = Describe(Func(func(*Context) Outcome { return Inherit() }), "no-op")

// describe returns a body's description, if any.
func describe(b Body) string {
	if d, ok := b.(Describer); ok {
		return d.Description()
	}
	return ""
}

// invoke calls b, converting a panic into an error.
func invoke(b Body, c *Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Invoke(c)
}
