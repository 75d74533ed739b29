package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
)

// scriptRunner answers every command with exit 0 unless listed in exits.
type scriptRunner struct {
	calls []string
	dirs  []string
	exits map[string]int
}

func (s *scriptRunner) Run(_ context.Context, dir, command string) (domain.CommandResult, error) {
	s.calls = append(s.calls, command)
	s.dirs = append(s.dirs, dir)
	return domain.CommandResult{Command: command, Dir: dir, ExitCode: s.exits[command]}, nil
}

func (s *scriptRunner) ran(command string) bool {
	for _, c := range s.calls {
		if c == command {
			return true
		}
	}
	return false
}

func newProjectOrchestrator(t *testing.T, p *Project, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *scriptRunner) {
	t.Helper()
	runner := &scriptRunner{exits: map[string]int{}}
	all := append(p.Options(), orchestrator.WithLogger(t.Logf))
	o := orchestrator.New(runner, "/srv/app", append(all, opts...)...)
	if err := p.Apply(o); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	return o, runner
}

// ─── Validation ─────────────────────────────────────────────────────────────

func TestProjectValidate(t *testing.T) {
	tests := []struct {
		name    string
		project Project
		wantErr error
	}{
		{"empty ok", Project{}, nil},
		{"task without commands", Project{Tasks: map[string]TaskConfig{"build": {}}}, domain.ErrMalformedTask},
		{"dotted task", Project{Tasks: map[string]TaskConfig{"a.b": {Commands: []string{"x"}}}}, domain.ErrMalformedTask},
		{"unknown phase", Project{Hooks: []HookConfig{{Event: "during.deploy", Commands: []string{"x"}}}}, domain.ErrUnknownPhase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.project.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProjectValidate_Messages(t *testing.T) {
	bad := []Project{
		{Application: ApplicationConfig{KeepReleases: -1}},
		{Tasks: map[string]TaskConfig{"x": {Commands: []string{"ls"}, Directory: "tmp"}}},
		{Hooks: []HookConfig{{Commands: []string{"ls"}}}},
		{Hooks: []HookConfig{{Event: "before.deploy"}}},
		{Hooks: []HookConfig{{Event: "nodot", Commands: []string{"ls"}}}},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: Validate() should fail", i)
		}
	}
}

// ─── Settings ───────────────────────────────────────────────────────────────

func TestProjectSettings(t *testing.T) {
	p := Project{Application: ApplicationConfig{
		KeepReleases: 7,
		Shared:       []string{"storage"},
		Writable:     []string{"cache"},
	}}
	s := p.Settings()
	if s.KeepReleases != 7 || s.Permissions != "755" {
		t.Errorf("Settings() = %+v", s)
	}
	if !reflect.DeepEqual(s.Shared, []string{"storage"}) || !reflect.DeepEqual(s.Writable, []string{"cache"}) {
		t.Errorf("Shared = %v Writable = %v", s.Shared, s.Writable)
	}

	def := (&Project{}).PipelineDefinition()
	if def.Name != "deploy" || !reflect.DeepEqual(def.Tasks, orchestrator.DefaultDeployTasks()) {
		t.Errorf("default pipeline = %+v", def)
	}
}

// ─── Apply ──────────────────────────────────────────────────────────────────

func TestProjectApply_TasksAndHooks(t *testing.T) {
	p := &Project{
		Tasks: map[string]TaskConfig{
			"migrate": {Commands: []string{"php artisan migrate --force"}},
			"warm":    {Commands: []string{"php artisan config:cache"}, Directory: "release"},
		},
		Hooks: []HookConfig{
			{Event: "before.swap-symlink", Commands: []string{"php artisan down"}},
			{Phase: "after", Task: "deploy", Run: []string{"warm"}},
			{Event: "after.deploy", Commands: []string{"curl -s hooks/deployed"}, Directory: "root"},
		},
	}
	o, runner := newProjectOrchestrator(t, p)

	report, err := o.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if !report.OK() {
		t.Fatalf("Verdict = %s: %s", report.Verdict, report.Message)
	}
	for _, cmd := range []string{"php artisan migrate --force", "php artisan down", "php artisan config:cache", "curl -s hooks/deployed"} {
		if !runner.ran(cmd) {
			t.Errorf("%q did not run", cmd)
		}
	}
	if !report.Ran("warm") {
		t.Error("hook run list did not invoke warm")
	}

	entries := o.Registry().Entries()
	found := false
	for _, e := range entries {
		if e.Name == "migrate" && e.Origin == orchestrator.OriginOverride {
			found = true
		}
	}
	if !found {
		t.Error("migrate should override the built-in")
	}
}

func TestProjectApply_CompositeTask(t *testing.T) {
	p := &Project{
		Tasks: map[string]TaskConfig{
			"assets":  {Commands: []string{"npm ci", "npm run build"}},
			"cache":   {Commands: []string{"php artisan cache:clear"}},
			"release": {Description: "assets and cache", Commands: []string{"echo start"}, Run: []string{"assets", "cache"}},
		},
	}
	o, runner := newProjectOrchestrator(t, p)
	runner.exits["npm run build"] = 1

	res, err := o.RunTask(context.Background(), "release")
	if err != nil {
		t.Fatalf("RunTask() error: %v", err)
	}
	if res.Verdict != domain.VerdictFailure || res.Cause == nil || res.Cause.Task != "assets" {
		t.Errorf("result = %s cause = %+v", res.Verdict, res.Cause)
	}
	if runner.ran("php artisan cache:clear") {
		t.Error("cache ran after assets failed")
	}
	for _, e := range o.Registry().Entries() {
		if e.Name == "release" && e.Description != "assets and cache" {
			t.Errorf("Description = %q", e.Description)
		}
	}
}

func TestProjectApply_UnknownRunNameBeforeAnyCommand(t *testing.T) {
	tests := []struct {
		name    string
		project Project
		caller  string
	}{
		{"task", Project{Tasks: map[string]TaskConfig{"migrate": {Run: []string{"no-such-task"}}}}, "migrate"},
		{"hook", Project{Hooks: []HookConfig{{Event: "before.swap-symlink", Run: []string{"no_such_task"}}}}, "before.swap-symlink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, runner := newProjectOrchestrator(t, &tt.project)

			_, err := o.Deploy(context.Background())
			var ute *domain.UnknownTaskError
			if !errors.As(err, &ute) {
				t.Fatalf("Deploy() error = %v, want *UnknownTaskError", err)
			}
			if ute.Name != "no-such-task" || ute.Caller != tt.caller {
				t.Errorf("error = %+v, want no-such-task referenced by %s", ute, tt.caller)
			}
			if len(runner.calls) != 0 {
				t.Errorf("commands ran before the unknown name was reported: %v", runner.calls)
			}

			if _, err := o.RunTask(context.Background(), "setup"); !errors.As(err, &ute) {
				t.Errorf("RunTask() error = %v, want *UnknownTaskError", err)
			}
			if len(runner.calls) != 0 {
				t.Errorf("RunTask ran commands: %v", runner.calls)
			}
		})
	}
}

func TestProjectApply_HaltOnFailureHook(t *testing.T) {
	p := &Project{
		Hooks: []HookConfig{
			{Event: "before.migrate", Commands: []string{"test -f .env"}, HaltOnFailure: true},
		},
	}
	o, runner := newProjectOrchestrator(t, p)
	runner.exits["test -f .env"] = 1

	report, err := o.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if report.Verdict != domain.VerdictHalted || report.FailedTask != "migrate" {
		t.Fatalf("result = %s at %q", report.Verdict, report.FailedTask)
	}
	if !strings.Contains(report.Message, "before.migrate") {
		t.Errorf("Message = %q", report.Message)
	}
}

func TestProjectApply_SoftHookFailure(t *testing.T) {
	p := &Project{
		Hooks: []HookConfig{{Event: "after.setup", Commands: []string{"notify-send setup"}}},
	}
	o, runner := newProjectOrchestrator(t, p)
	runner.exits["notify-send setup"] = 1

	report, err := o.Deploy(context.Background())
	if err != nil || !report.OK() {
		t.Errorf("a failing hook without halt_on_failure should not stop the run: %v %+v", err, report)
	}
}

func TestProjectApply_CustomPipeline(t *testing.T) {
	p := &Project{
		Pipeline: PipelineConfig{Name: "release", Tasks: []string{"build", "ship"}, ContinueOnFailure: true},
		Tasks: map[string]TaskConfig{
			"build": {Commands: []string{"make"}},
			"ship":  {Commands: []string{"rsync -a dist/ remote:"}, Directory: "root"},
		},
	}
	o, runner := newProjectOrchestrator(t, p)
	runner.exits["make"] = 2

	report, err := o.Deploy(context.Background())
	if err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if report.Verdict != domain.VerdictFailure || report.FailedTask != "build" {
		t.Errorf("result = %s at %q", report.Verdict, report.FailedTask)
	}
	if !runner.ran("rsync -a dist/ remote:") {
		t.Error("continue_on_failure should run ship")
	}
	if o.Pipeline().Name != "release" {
		t.Errorf("pipeline = %q", o.Pipeline().Name)
	}
}
