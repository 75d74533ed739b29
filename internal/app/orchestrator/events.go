package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Bus dispatches lifecycle events keyed by (phase, task). Listeners have the
// same shapes as task bodies and run in registration order against the
// owning task's execution context.
type Bus struct {
	listeners map[string][]Body
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Body)}
}

// Subscribe appends l to the listeners of (phase, task).
func (b *Bus) Subscribe(phase domain.Phase, task string, l Body) error {
	if phase == "" || strings.ContainsAny(string(phase), ". ") {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPhase, phase)
	}
	key := Slug(task)
	if key == "" {
		return fmt.Errorf("%w: listener for phase %s has no task", domain.ErrMalformedTask, phase)
	}
	if l == nil {
		return fmt.Errorf("%w: nil listener for %s", domain.ErrMalformedTask, domain.EventKey(phase, key))
	}
	k := domain.EventKey(phase, key)
	b.listeners[k] = append(b.listeners[k], l)
	return nil
}

// On subscribes using a "phase.task" key such as "before.swap-symlink".
func (b *Bus) On(key string, l Body) error {
	phase, task, ok := domain.ParseEventKey(key)
	if !ok {
		return fmt.Errorf("%w: malformed event key %q", domain.ErrUnknownPhase, key)
	}
	return b.Subscribe(phase, task, l)
}

// Listeners returns the listeners of (phase, task) in registration order.
func (b *Bus) Listeners(phase domain.Phase, task string) []Body {
	return b.listeners[domain.EventKey(phase, Slug(task))]
}

// Count returns how many listeners (phase, task) has.
func (b *Bus) Count(phase domain.Phase, task string) int {
	return len(b.Listeners(phase, task))
}

// Keys lists every event key with at least one listener, sorted.
func (b *Bus) Keys() []string {
	keys := make([]string, 0, len(b.listeners))
	for k, ls := range b.listeners {
		if len(ls) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Publish runs every listener of (phase, c.Task()) in order.
//
// The first listener that halts the context wins: the remaining listeners of
// the phase are skipped. Listeners of a context that was already halted
// (error listeners of a halted task) all run, but cannot run commands. A
// listener that returns an error or panics halts the context with that error.
// A non-nil return is a configuration error (for example an unknown nested
// task) and aborts the run.
func (b *Bus) Publish(c *Context, phase domain.Phase) error {
	listeners := b.Listeners(phase, c.task)
	if len(listeners) == 0 {
		return nil
	}

	prev := c.phase
	c.phase = phase
	defer func() { c.phase = prev }()

	haltedBefore := c.halted
	for i, l := range listeners {
		if c.halted && !haltedBefore {
			c.orch.logf("[events] %s: skipping %d listener(s) after halt", domain.EventKey(phase, c.task), len(listeners)-i)
			return nil
		}
		_, err := invoke(l, c)
		switch {
		case err != nil && !c.halted:
			c.haltWith(err.Error(), &domain.ListenerError{Phase: phase, Task: c.task, Index: i, Err: err})
		case err != nil:
			c.orch.logf("[events] %s: listener %d failed: %v", domain.EventKey(phase, c.task), i, err)
		}
		if c.fatal != nil {
			return c.fatal
		}
		if c.halted && !haltedBefore {
			c.orch.notifyListenerHalt(phase, c.task)
		}
	}
	return nil
}
