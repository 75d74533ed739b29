// Package app provides application-layer orchestration services.
// It wires domain logic with infrastructure, never the reverse.
package app

import (
	"fmt"
	"strings"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
)

// Project is the deployable part of a project file: where the application
// lives, which tasks exist and which hooks listen to them.
type Project struct {
	Application ApplicationConfig     `toml:"application" yaml:"application"`
	Pipeline    PipelineConfig        `toml:"pipeline" yaml:"pipeline"`
	Tasks       map[string]TaskConfig `toml:"tasks,omitempty" yaml:"tasks,omitempty"`
	Hooks       []HookConfig          `toml:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// ApplicationConfig describes the deployment target layout.
type ApplicationConfig struct {
	Name          string   `toml:"name" yaml:"name"`
	RootDirectory string   `toml:"root_directory" yaml:"root_directory"`
	KeepReleases  int      `toml:"keep_releases" yaml:"keep_releases"`
	Shared        []string `toml:"shared,omitempty" yaml:"shared,omitempty"`
	Writable      []string `toml:"writable,omitempty" yaml:"writable,omitempty"`
	Permissions   string   `toml:"permissions" yaml:"permissions"`
}

// PipelineConfig overrides the deploy pipeline.
type PipelineConfig struct {
	Name              string   `toml:"name" yaml:"name"`
	Tasks             []string `toml:"tasks,omitempty" yaml:"tasks,omitempty"`
	ContinueOnFailure bool     `toml:"continue_on_failure" yaml:"continue_on_failure"`
}

// TaskConfig declares a user task. Commands run first, then the tasks named
// in Run are invoked in order.
type TaskConfig struct {
	Description string   `toml:"description" yaml:"description"`
	Commands    []string `toml:"commands,omitempty" yaml:"commands,omitempty"`
	Directory   string   `toml:"directory" yaml:"directory"` // "release" (default) or "root"
	Run         []string `toml:"run,omitempty" yaml:"run,omitempty"`
}

// HookConfig declares an event listener. Either Event ("before.migrate") or
// Phase and Task select the event.
type HookConfig struct {
	Event     string   `toml:"event" yaml:"event"`
	Phase     string   `toml:"phase" yaml:"phase"`
	Task      string   `toml:"task" yaml:"task"`
	Commands  []string `toml:"commands,omitempty" yaml:"commands,omitempty"`
	Directory string   `toml:"directory" yaml:"directory"`
	Run       []string `toml:"run,omitempty" yaml:"run,omitempty"`
	// HaltOnFailure halts the owning task when a hook command exits non-zero.
	HaltOnFailure bool `toml:"halt_on_failure" yaml:"halt_on_failure"`
}

// key returns the hook's event key.
func (h HookConfig) key() (domain.Phase, string, error) {
	if h.Event != "" {
		phase, task, ok := domain.ParseEventKey(h.Event)
		if !ok {
			return "", "", fmt.Errorf("hook event %q: want <phase>.<task>", h.Event)
		}
		return phase, task, nil
	}
	if h.Phase == "" || h.Task == "" {
		return "", "", fmt.Errorf("hook needs either event or phase and task")
	}
	return domain.Phase(h.Phase), h.Task, nil
}

// ─── Validation ─────────────────────────────────────────────────────────────

var knownPhases = map[domain.Phase]bool{
	domain.PhaseBefore: true,
	domain.PhaseAfter:  true,
	domain.PhaseError:  true,
	domain.PhaseInit:   true,
}

// Validate rejects malformed task and hook declarations. Unknown task names
// are not checked here; the orchestrator reports them before a run starts.
func (p *Project) Validate() error {
	if p.Application.KeepReleases < 0 {
		return fmt.Errorf("application.keep_releases must not be negative")
	}
	for name, t := range p.Tasks {
		if strings.TrimSpace(name) == "" || strings.Contains(name, ".") {
			return fmt.Errorf("task %q: %w", name, domain.ErrMalformedTask)
		}
		if len(t.Commands) == 0 && len(t.Run) == 0 {
			return fmt.Errorf("task %q: %w: no commands or run list", name, domain.ErrMalformedTask)
		}
		if _, err := parseScope(t.Directory); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
	}
	for i, h := range p.Hooks {
		phase, _, err := h.key()
		if err != nil {
			return fmt.Errorf("hooks[%d]: %w", i, err)
		}
		if !knownPhases[phase] {
			return fmt.Errorf("hooks[%d]: %w: %q", i, domain.ErrUnknownPhase, phase)
		}
		if len(h.Commands) == 0 && len(h.Run) == 0 {
			return fmt.Errorf("hooks[%d]: no commands or run list", i)
		}
		if _, err := parseScope(h.Directory); err != nil {
			return fmt.Errorf("hooks[%d]: %w", i, err)
		}
	}
	return nil
}

func parseScope(dir string) (domain.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", string(domain.ScopeRelease):
		return domain.ScopeRelease, nil
	case string(domain.ScopeRoot):
		return domain.ScopeRoot, nil
	default:
		return "", fmt.Errorf("unknown directory %q (want root or release)", dir)
	}
}

// ─── Orchestrator Wiring ────────────────────────────────────────────────────

// Settings returns the orchestrator settings of the project.
func (p *Project) Settings() orchestrator.Settings {
	s := orchestrator.DefaultSettings()
	if p.Application.KeepReleases > 0 {
		s.KeepReleases = p.Application.KeepReleases
	}
	if p.Application.Permissions != "" {
		s.Permissions = p.Application.Permissions
	}
	s.Shared = p.Application.Shared
	s.Writable = p.Application.Writable
	return s
}

// PipelineDefinition returns the configured pipeline, or the default one.
func (p *Project) PipelineDefinition() orchestrator.Pipeline {
	def := orchestrator.DefaultPipeline()
	if p.Pipeline.Name != "" {
		def.Name = p.Pipeline.Name
	}
	if len(p.Pipeline.Tasks) > 0 {
		def.Tasks = p.Pipeline.Tasks
	}
	def.ContinueOnFailure = p.Pipeline.ContinueOnFailure
	return def
}

// Options returns the orchestrator options derived from the project.
func (p *Project) Options() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithApplication(p.Application.Name),
		orchestrator.WithSettings(p.Settings()),
		orchestrator.WithPipeline(p.PipelineDefinition()),
	}
}

// Apply registers the project's tasks and hooks on o. Names in run lists are
// declared with Require and checked when a run starts.
func (p *Project) Apply(o *orchestrator.Orchestrator) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for name, t := range p.Tasks {
		if err := o.Register(name, taskBody(t)); err != nil {
			return err
		}
		o.Require(orchestrator.Slug(name), t.Run...)
	}
	for i, h := range p.Hooks {
		phase, task, _ := h.key()
		if err := o.Bus().Subscribe(phase, task, hookBody(h)); err != nil {
			return fmt.Errorf("hooks[%d]: %w", i, err)
		}
		o.Require(domain.EventKey(phase, orchestrator.Slug(task)), h.Run...)
	}
	return nil
}

func taskBody(t TaskConfig) orchestrator.Body {
	scope, _ := parseScope(t.Directory)
	if len(t.Run) == 0 {
		body := orchestrator.Commands{Scope: scope, Lines: t.Commands}
		if t.Description == "" {
			return body
		}
		return orchestrator.Describe(body, t.Description)
	}

	run := t.Run
	body := orchestrator.Func(func(c *orchestrator.Context) orchestrator.Outcome {
		if len(t.Commands) > 0 && !c.Run(scope, t.Commands...) {
			return orchestrator.Inherit()
		}
		for _, name := range run {
			if res := c.RunTask(name); !res.OK() {
				break
			}
		}
		return orchestrator.Inherit()
	})
	desc := t.Description
	if desc == "" {
		desc = "runs " + strings.Join(run, ", ")
	}
	return orchestrator.Describe(body, desc)
}

func hookBody(h HookConfig) orchestrator.Body {
	scope, _ := parseScope(h.Directory)
	return orchestrator.Func(func(c *orchestrator.Context) orchestrator.Outcome {
		if len(h.Commands) > 0 && !c.Run(scope, h.Commands...) {
			if h.HaltOnFailure {
				last, _ := c.LastResult()
				c.Haltf("hook on %s: %q exited with status %d",
					domain.EventKey(c.Phase(), c.Task()), last.Command, last.ExitCode)
			}
			return orchestrator.Inherit()
		}
		for _, name := range h.Run {
			if res := c.RunTask(name); !res.OK() {
				break
			}
		}
		return orchestrator.Inherit()
	})
}
