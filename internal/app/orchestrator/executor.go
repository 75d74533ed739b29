package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Result is the structured outcome of one task invocation.
type Result struct {
	Task    string         `json:"task"`
	Parent  string         `json:"parent,omitempty"`
	Depth   int            `json:"depth"`
	Verdict domain.Verdict `json:"verdict"`
	Message string         `json:"message,omitempty"`
	// Err classifies non-success: *domain.HaltError, *domain.ListenerError,
	// *domain.CommandError, or the error a body returned.
	Err error `json:"-"`
	// Cause is the nested result a failure was inherited from.
	Cause    *Result                `json:"cause,omitempty"`
	States   []domain.TaskState     `json:"states"`
	Commands []domain.CommandResult `json:"commands,omitempty"`
	// Skipped is set when the task was never started because its caller had
	// already stopped.
	Skipped   bool          `json:"skipped,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// OK reports a Success verdict.
func (r Result) OK() bool { return r.Verdict == domain.VerdictSuccess }

// LastExitCode returns the exit code of the last command, 0 if none ran.
func (r Result) LastExitCode() int {
	if len(r.Commands) == 0 {
		return 0
	}
	return r.Commands[len(r.Commands)-1].ExitCode
}

// failingTask follows Cause down to the task where the failure originated.
func (r Result) failingTask() string {
	cur := &r
	for cur.Cause != nil {
		cur = cur.Cause
	}
	return cur.Task
}

// Record converts r into its persisted form.
func (r Result) Record(deploymentID string) domain.TaskRecord {
	var out strings.Builder
	for _, c := range r.Commands {
		fmt.Fprintf(&out, "$ %s\n", c.Command)
		out.WriteString(c.Stdout)
		out.WriteString(c.Stderr)
	}
	return domain.TaskRecord{
		DeploymentID: deploymentID,
		Task:         r.Task,
		Parent:       r.Parent,
		Depth:        r.Depth,
		Verdict:      r.Verdict,
		Message:      r.Message,
		ExitCode:     r.LastExitCode(),
		Commands:     len(r.Commands),
		Output:       out.String(),
		StartedAt:    r.StartedAt,
		Duration:     r.Duration,
	}
}

// ─── State Machine ──────────────────────────────────────────────────────────

var allowedTransitions = map[domain.TaskState][]domain.TaskState{
	domain.TaskPending:     {domain.TaskBeforeFired},
	domain.TaskBeforeFired: {domain.TaskRunning, domain.TaskHalted},
	domain.TaskRunning:     {domain.TaskSucceeded, domain.TaskFailed, domain.TaskHalted},
	domain.TaskSucceeded:   {domain.TaskAfterFired},
	domain.TaskFailed:      {domain.TaskAfterFired},
	domain.TaskHalted:      {domain.TaskAfterFired},
	domain.TaskAfterFired:  {domain.TaskDone},
}

// machine records validated transitions of one invocation.
type machine struct {
	task   string
	states []domain.TaskState
}

func newMachine(task string) *machine {
	return &machine{task: task, states: []domain.TaskState{domain.TaskPending}}
}

func (m *machine) current() domain.TaskState { return m.states[len(m.states)-1] }

func (m *machine) to(next domain.TaskState) {
	from := m.current()
	for _, allowed := range allowedTransitions[from] {
		if allowed == next {
			m.states = append(m.states, next)
			return
		}
	}
	panic(fmt.Sprintf("orchestrator: invalid transition for %q: %s -> %s", m.task, from, next))
}

func verdictState(v domain.Verdict) domain.TaskState {
	switch v {
	case domain.VerdictSuccess:
		return domain.TaskSucceeded
	case domain.VerdictHalted:
		return domain.TaskHalted
	default:
		return domain.TaskFailed
	}
}

// ─── Executor ───────────────────────────────────────────────────────────────

// execute runs one task invocation. The returned error is reserved for
// configuration errors (unknown or recursive tasks) that abort the whole run;
// every other outcome is a Result.
func (o *Orchestrator) execute(ctx context.Context, run *runState, parent *Context, name string) (Result, error) {
	name = Slug(name)
	body, err := o.registry.Resolve(name)
	if err != nil {
		var ute *domain.UnknownTaskError
		if parent != nil && errors.As(err, &ute) {
			ute.Caller = parent.task
		}
		return Result{Task: name}, err
	}
	if err := run.push(name); err != nil {
		return Result{Task: name}, err
	}
	defer run.pop()

	c := &Context{ctx: ctx, orch: o, run: run, task: name, parent: parent}
	if parent != nil {
		c.depth = parent.depth + 1
	}
	m := newMachine(name)
	start := o.now()

	// Pending → BeforeFired
	if err := o.bus.Publish(c, domain.PhaseBefore); err != nil {
		return Result{Task: name}, err
	}
	m.to(domain.TaskBeforeFired)
	if c.nested != nil && !c.halted {
		// A before listener ran a task that did not succeed.
		c.haltWith(nestedMessage(c.nested), &domain.HaltError{Task: name, Message: nestedMessage(c.nested)})
		o.notifyListenerHalt(domain.PhaseBefore, name)
	}

	var (
		verdict domain.Verdict
		message string
		cause   error
	)
	if c.halted {
		// BeforeFired → Halted: the body never runs.
		verdict, message, cause = domain.VerdictHalted, c.haltMsg, c.haltErr
		m.to(domain.TaskHalted)
	} else {
		m.to(domain.TaskRunning)
		c.resetExit()
		outcome, bodyErr := invoke(body, c)
		if c.fatal != nil {
			return Result{Task: name}, c.fatal
		}
		verdict, message, cause = o.decide(c, outcome, bodyErr)
		m.to(verdictState(verdict))
	}

	// (Success | Failure | Halted) → AfterFired
	c.verdict = verdict
	phase := domain.PhaseAfter
	if verdict != domain.VerdictSuccess {
		phase = domain.PhaseError
	}
	wasHalted := c.halted
	if err := o.bus.Publish(c, phase); err != nil {
		return Result{Task: name}, err
	}
	if verdict == domain.VerdictSuccess && c.halted && !wasHalted {
		verdict, message, cause = domain.VerdictHalted, c.haltMsg, c.haltErr
	}
	m.to(domain.TaskAfterFired)
	m.to(domain.TaskDone)

	res := Result{
		Task:      name,
		Parent:    c.Parent(),
		Depth:     c.depth,
		Verdict:   verdict,
		Message:   message,
		Err:       cause,
		Cause:     c.nested,
		States:    m.states,
		Commands:  c.commands,
		StartedAt: start,
		Duration:  o.now().Sub(start),
	}
	run.results = append(run.results, res)
	o.notifyTask(run.deployment, res)
	o.logResult(res)
	return res, nil
}

// decide computes the verdict of a body that ran. Precedence: halt, failed
// nested task, body error, explicit return, last exit status.
func (o *Orchestrator) decide(c *Context, outcome Outcome, bodyErr error) (domain.Verdict, string, error) {
	switch {
	case c.halted:
		return domain.VerdictHalted, c.haltMsg, c.haltErr
	case c.nested != nil:
		return c.nested.Verdict, nestedMessage(c.nested), c.nested.Err
	case bodyErr != nil:
		return domain.VerdictFailure, bodyErr.Error(), bodyErr
	}

	verdict := resolveVerdict(outcome, c.LastExitStatusOK())
	if verdict == domain.VerdictSuccess {
		return verdict, "", nil
	}
	if outcome.IsExplicit() {
		return verdict, "task returned a failure value", nil
	}
	last, _ := c.LastResult()
	cerr := &domain.CommandError{Task: c.task, Result: last}
	return verdict, cerr.Error(), cerr
}

func nestedMessage(r *Result) string {
	if r.Message == "" {
		return fmt.Sprintf("%s: %s", r.Task, strings.ToLower(string(r.Verdict)))
	}
	return fmt.Sprintf("%s: %s", r.Task, r.Message)
}

func (o *Orchestrator) logResult(r Result) {
	indent := strings.Repeat("  ", r.Depth)
	if r.OK() {
		o.logf("[executor] %s%s ok (%s)", indent, r.Task, r.Duration.Round(time.Millisecond))
		return
	}
	o.logf("[executor] %s%s %s: %s", indent, r.Task, strings.ToLower(string(r.Verdict)), r.Message)
}
