package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// DefaultPipelineName is the task name of the deploy pipeline.
const DefaultPipelineName = "deploy"

// Pipeline is a composite task running a fixed, ordered list of sub-tasks.
type Pipeline struct {
	Name  string
	Tasks []string
	// ContinueOnFailure keeps going after a sub-task fails; the pipeline
	// still fails overall. A halt always stops it.
	ContinueOnFailure bool
}

// DefaultDeployTasks is the built-in deploy sequence. swap-symlink comes
// after every preparation step, so before.swap-symlink listeners see the
// previous release live and after.deploy listeners see the new one.
func DefaultDeployTasks() []string {
	return []string{
		"primer",
		"setup",
		"lock",
		"create-release",
		"dependencies",
		"test",
		"shared",
		"permissions",
		"migrate",
		"swap-symlink",
		"unlock",
		"cleanup",
	}
}

// DefaultPipeline returns the deploy pipeline.
func DefaultPipeline() Pipeline {
	return Pipeline{Name: DefaultPipelineName, Tasks: DefaultDeployTasks()}
}

func (p Pipeline) body() Body {
	run := ErrFunc(func(c *Context) (Outcome, error) {
		var failed []string
		for _, name := range p.Tasks {
			res := c.runNested(name, !p.ContinueOnFailure)
			if c.stopped() {
				break
			}
			if !res.OK() {
				failed = append(failed, res.Task)
			}
		}
		if len(failed) > 0 {
			return Fail(), fmt.Errorf("%d task(s) failed: %s", len(failed), strings.Join(failed, ", "))
		}
		return Inherit(), nil
	})
	return Describe(run, "runs "+strings.Join(p.Tasks, ", "))
}

// Report summarises one pipeline run.
type Report struct {
	Deployment    domain.Deployment `json:"deployment"`
	Verdict       domain.Verdict    `json:"verdict"`
	FailedTask    string            `json:"failed_task,omitempty"`
	LastCompleted string            `json:"last_completed,omitempty"`
	Message       string            `json:"message,omitempty"`
	// Results holds every finished invocation, innermost first.
	Results []Result `json:"results"`
}

// OK reports overall success.
func (r *Report) OK() bool { return r.Verdict == domain.VerdictSuccess }

// Ran reports whether task was started during the run.
func (r *Report) Ran(task string) bool {
	task = Slug(task)
	for _, res := range r.Results {
		if res.Task == task {
			return true
		}
	}
	return false
}

// Validate resolves every pipeline task and every name declared through
// Require, so unknown names are reported before any command runs.
func (o *Orchestrator) Validate() error {
	for _, name := range o.pipeline.Tasks {
		if !o.registry.Has(name) {
			return &domain.UnknownTaskError{Name: Slug(name), Caller: o.pipeline.Name}
		}
	}
	return o.validateRefs()
}

func (o *Orchestrator) validateRefs() error {
	for _, ref := range o.refs {
		if !o.registry.Has(ref.name) {
			return &domain.UnknownTaskError{Name: ref.name, Caller: ref.caller}
		}
	}
	return nil
}

// Deploy runs the pipeline into a fresh release directory.
//
// Configuration errors (unknown or recursive tasks) are returned as errors.
// Task failures and halts are reported through the Report.
func (o *Orchestrator) Deploy(ctx context.Context) (*Report, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	name := Slug(o.pipeline.Name)
	started := o.now()
	release := domain.ReleaseName(started)
	paths := domain.Paths{Root: o.root}
	paths.Release = paths.ReleasesDir() + "/" + release

	run := &runState{
		deployment: domain.Deployment{
			ID:          o.newID(),
			Application: o.app,
			Pipeline:    name,
			Release:     release,
			Pretend:     o.pretend,
			StartedAt:   started,
		},
		paths: paths,
	}
	o.notifyStarted(run.deployment)
	o.logf("[pipeline] %s %s → %s", name, run.deployment.ID, paths.Release)

	report := &Report{}
	initCtx := &Context{ctx: ctx, orch: o, run: run, task: name}
	err := o.bus.Publish(initCtx, domain.PhaseInit)
	switch {
	case err != nil:
	case initCtx.halted:
		report.Verdict = domain.VerdictHalted
		report.FailedTask = name
		report.Message = initCtx.haltMsg
	default:
		var res Result
		res, err = o.execute(ctx, run, nil, name)
		if err == nil {
			o.summarise(report, res, run.results)
		}
	}

	d := run.deployment
	d.FinishedAt = o.now()
	if err != nil {
		d.Verdict = domain.VerdictFailure
		d.Message = err.Error()
		o.notifyFinished(d)
		return nil, err
	}
	d.Verdict = report.Verdict
	d.FailedTask = report.FailedTask
	d.LastCompleted = report.LastCompleted
	d.Message = report.Message
	o.notifyFinished(d)

	report.Deployment = d
	report.Results = run.results
	if report.OK() {
		o.logf("[pipeline] %s succeeded (last task: %s)", name, report.LastCompleted)
	} else {
		o.logf("[pipeline] %s %s at %s: %s", name, strings.ToLower(string(report.Verdict)), report.FailedTask, report.Message)
	}
	return report, nil
}

func (o *Orchestrator) summarise(report *Report, res Result, results []Result) {
	report.Verdict = res.Verdict
	report.Message = res.Message

	var failed *Result
	for i := range results {
		step := results[i]
		if step.Depth != 1 {
			continue
		}
		if step.OK() {
			report.LastCompleted = step.Task
		} else if failed == nil {
			failed = &results[i]
		}
	}
	if res.OK() {
		return
	}
	if failed != nil {
		report.FailedTask = failed.Task
		if failed.Message != "" {
			report.Message = failed.Message
		}
		return
	}
	report.FailedTask = res.Task
}
