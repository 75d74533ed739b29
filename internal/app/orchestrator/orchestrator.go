// Package orchestrator is the task orchestration and event-dispatch core.
//
// An Orchestrator owns a task Registry, an event Bus and a CommandRunner.
// Tasks run through the executor state machine:
//
//	Pending → BeforeFired → Running → (Success | Failure | Halted) → AfterFired → Done
//
// and a Pipeline is a composite task running a fixed list of sub-tasks,
// stopping at the first one that does not succeed.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Settings are the deployment knobs the built-in tasks read.
type Settings struct {
	// KeepReleases is how many releases cleanup leaves on disk.
	KeepReleases int
	// Shared are release-relative paths symlinked to <root>/shared.
	Shared []string
	// Writable are release-relative paths the permissions task chmods.
	Writable []string
	// Permissions is the chmod mode applied to Writable paths.
	Permissions string
}

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		KeepReleases: 4,
		Permissions:  "755",
	}
}

// Observer receives run lifecycle notifications (history, metrics).
type Observer interface {
	DeploymentStarted(d domain.Deployment)
	TaskFinished(d domain.Deployment, r Result)
	DeploymentFinished(d domain.Deployment)
}

// HaltObserver is optionally implemented by observers interested in
// listener-triggered halts.
type HaltObserver interface {
	ListenerHalted(phase domain.Phase, task string)
}

// Orchestrator wires registry, bus and runner together. Build it once at
// start-up, register tasks and listeners, then run.
type Orchestrator struct {
	registry  *Registry
	bus       *Bus
	runner    domain.CommandRunner
	root      string
	app       string
	settings  Settings
	pipeline  Pipeline
	refs      []taskRef
	observers []Observer
	logger    func(format string, args ...any)
	verbose   bool
	pretend   bool
	now       func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) Option { return func(o *Orchestrator) { o.settings = s } }

// WithApplication names the deployed application.
func WithApplication(name string) Option { return func(o *Orchestrator) { o.app = name } }

// WithPipeline replaces the default deploy pipeline.
func WithPipeline(p Pipeline) Option { return func(o *Orchestrator) { o.pipeline = p } }

// WithObserver adds a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithLogger replaces log.Printf.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(o *Orchestrator) { o.logger = fn }
}

// WithVerbose logs every command before it runs.
func WithVerbose(v bool) Option { return func(o *Orchestrator) { o.verbose = v } }

// WithPretend marks deployments as dry runs in their records.
func WithPretend(p bool) Option { return func(o *Orchestrator) { o.pretend = p } }

// WithClock replaces time.Now (release names, timings).
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New creates an orchestrator running commands through runner against the
// root directory root. Built-in tasks and the deploy pipeline are registered.
func New(runner domain.CommandRunner, root string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: NewRegistry(),
		bus:      NewBus(),
		runner:   runner,
		root:     root,
		settings: DefaultSettings(),
		pipeline: DefaultPipeline(),
		logger:   log.Printf,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pipeline.Name == "" {
		o.pipeline.Name = DefaultPipelineName
	}
	o.pipeline.Name = Slug(o.pipeline.Name)
	registerBuiltins(o.registry)
	_ = o.registry.RegisterBuiltin(o.pipeline.Name, o.pipeline.body())
	return o
}

// Registry returns the task registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Bus returns the event bus.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Pipeline returns the deploy pipeline definition.
func (o *Orchestrator) Pipeline() Pipeline { return o.pipeline }

// Root returns the root directory.
func (o *Orchestrator) Root() string { return o.root }

// CatalogueEntry is a registry entry with its listener counts per phase.
type CatalogueEntry struct {
	Entry
	Listeners map[domain.Phase]int `json:"listeners,omitempty"`
}

var cataloguePhases = []domain.Phase{domain.PhaseBefore, domain.PhaseAfter, domain.PhaseError, domain.PhaseInit}

// Catalogue lists every registered task, sorted by name, with the number of
// listeners subscribed to each of its phases.
func (o *Orchestrator) Catalogue() []CatalogueEntry {
	entries := o.registry.Entries()
	out := make([]CatalogueEntry, 0, len(entries))
	for _, e := range entries {
		ce := CatalogueEntry{Entry: e}
		for _, phase := range cataloguePhases {
			if n := o.bus.Count(phase, e.Name); n > 0 {
				if ce.Listeners == nil {
					ce.Listeners = make(map[domain.Phase]int)
				}
				ce.Listeners[phase] = n
			}
		}
		out = append(out, ce)
	}
	return out
}

// UnboundEvents lists event keys whose task does not resolve. Their
// listeners never fire, usually because of a misspelt task name.
func (o *Orchestrator) UnboundEvents() []string {
	var out []string
	for _, key := range o.bus.Keys() {
		if _, task, ok := domain.ParseEventKey(key); ok && !o.registry.Has(task) {
			out = append(out, key)
		}
	}
	return out
}

// Register binds body to a task name.
func (o *Orchestrator) Register(name string, body Body) error {
	return o.registry.Register(name, body)
}

// taskRef is a task name a body will invoke by name at run time.
type taskRef struct {
	caller string
	name   string
}

// Require declares that caller invokes names through Context.RunTask, so
// Validate can report an unknown name before any command runs.
func (o *Orchestrator) Require(caller string, names ...string) {
	for _, name := range names {
		o.refs = append(o.refs, taskRef{caller: caller, name: Slug(name)})
	}
}

// Before subscribes l to before.<task>.
func (o *Orchestrator) Before(task string, l Body) error {
	return o.bus.Subscribe(domain.PhaseBefore, task, l)
}

// After subscribes l to after.<task>.
func (o *Orchestrator) After(task string, l Body) error {
	return o.bus.Subscribe(domain.PhaseAfter, task, l)
}

// OnError subscribes l to error.<task>.
func (o *Orchestrator) OnError(task string, l Body) error {
	return o.bus.Subscribe(domain.PhaseError, task, l)
}

// RunTask runs a single task outside the deploy pipeline. The release
// directory is the live release (<root>/current).
func (o *Orchestrator) RunTask(ctx context.Context, name string) (Result, error) {
	name = Slug(name)
	if _, err := o.registry.Resolve(name); err != nil {
		return Result{}, err
	}
	if err := o.validateRefs(); err != nil {
		return Result{}, err
	}

	paths := domain.Paths{Root: o.root}
	paths.Release = paths.CurrentLink()
	run := &runState{
		deployment: domain.Deployment{
			ID:          o.newID(),
			Application: o.app,
			Pipeline:    name,
			Release:     "current",
			Pretend:     o.pretend,
			StartedAt:   o.now(),
		},
		paths: paths,
	}
	o.notifyStarted(run.deployment)

	res, err := o.execute(ctx, run, nil, name)

	d := run.deployment
	d.FinishedAt = o.now()
	if err != nil {
		d.Verdict = domain.VerdictFailure
		d.Message = err.Error()
	} else {
		d.Verdict = res.Verdict
		d.Message = res.Message
		if res.OK() {
			d.LastCompleted = name
		} else {
			d.FailedTask = res.failingTask()
		}
	}
	o.notifyFinished(d)
	return res, err
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger(format, args...)
	}
}

func (o *Orchestrator) debugf(format string, args ...any) {
	if o.verbose {
		o.logf(format, args...)
	}
}

func (o *Orchestrator) notifyStarted(d domain.Deployment) {
	for _, obs := range o.observers {
		obs.DeploymentStarted(d)
	}
}

func (o *Orchestrator) notifyTask(d domain.Deployment, r Result) {
	for _, obs := range o.observers {
		obs.TaskFinished(d, r)
	}
}

func (o *Orchestrator) notifyFinished(d domain.Deployment) {
	for _, obs := range o.observers {
		obs.DeploymentFinished(d)
	}
}

func (o *Orchestrator) notifyListenerHalt(phase domain.Phase, task string) {
	for _, obs := range o.observers {
		if h, ok := obs.(HaltObserver); ok {
			h.ListenerHalted(phase, task)
		}
	}
}
