package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/guoyu07/rocketeer/internal/domain"
)

const (
	testRelease  = testRoot + "/releases/20261019120000"
	priorRelease = testRoot + "/releases/20261018090000"
	swapCommand  = "ln -sfn " + testRelease + " " + testRoot + "/current"
	lockCheck    = "test ! -e " + testRoot + "/deploy.lock"
	unlockCmd    = "rm -f " + testRoot + "/deploy.lock"
)

func TestDeploy_DefaultPipeline(t *testing.T) {
	o, runner := newTestOrchestrator(t, WithApplication("shop"))
	o.newID = func() string { return "dep-1" }

	report := mustDeploy(t, o)
	if !report.OK() {
		t.Fatalf("Verdict = %s (%s at %s)", report.Verdict, report.Message, report.FailedTask)
	}
	if report.LastCompleted != "cleanup" || report.FailedTask != "" {
		t.Errorf("LastCompleted = %q FailedTask = %q", report.LastCompleted, report.FailedTask)
	}
	d := report.Deployment
	if d.ID != "dep-1" || d.Application != "shop" || d.Release != "20261019120000" || d.Pipeline != "deploy" {
		t.Errorf("Deployment = %+v", d)
	}
	if runner.current != testRelease {
		t.Errorf("current = %q, want %q", runner.current, testRelease)
	}
	for _, cmd := range []string{
		"mkdir -p " + testRoot + "/releases " + testRoot + "/shared",
		lockCheck,
		"echo dep-1 > " + testRoot + "/deploy.lock",
		"mkdir -p " + testRelease,
		swapCommand,
		unlockCmd,
	} {
		if !runner.ran(cmd) {
			t.Errorf("command %q did not run; ran %v", cmd, runner.calls)
		}
	}

	var steps []string
	for _, r := range report.Results {
		if r.Depth == 1 {
			steps = append(steps, r.Task)
		}
	}
	if !reflect.DeepEqual(steps, DefaultDeployTasks()) {
		t.Errorf("steps = %v, want %v", steps, DefaultDeployTasks())
	}
	if last := report.Results[len(report.Results)-1]; last.Task != "deploy" {
		t.Errorf("last result = %s, want deploy", last.Task)
	}
}

func TestDeploy_FailedMigrationStopsBeforeSwap(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.current = priorRelease
	runner.exits["php artisan migrate:status"] = 0
	runner.exits["php artisan migrate --force"] = 1
	mustRegister(t, o, "Migrate", Command("php artisan migrate:status", "php artisan migrate --force"))

	report := mustDeploy(t, o)
	if report.Verdict != domain.VerdictFailure {
		t.Fatalf("Verdict = %s, want FAILURE", report.Verdict)
	}
	if report.FailedTask != "migrate" || report.LastCompleted != "permissions" {
		t.Errorf("FailedTask = %q LastCompleted = %q", report.FailedTask, report.LastCompleted)
	}
	if !strings.Contains(report.Message, "migrate --force") {
		t.Errorf("Message = %q", report.Message)
	}
	if report.Ran("swap-symlink") || runner.ranPrefix("ln -sfn") {
		t.Error("swap-symlink ran after a failed migration")
	}
	if runner.current != priorRelease {
		t.Errorf("current = %q, want prior release", runner.current)
	}
	if runner.ran(unlockCmd) {
		t.Error("lock released after failure")
	}
	if report.Deployment.FailedTask != "migrate" {
		t.Errorf("Deployment.FailedTask = %q", report.Deployment.FailedTask)
	}
}

func TestDeploy_AfterDeploySeesNewRelease(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.current = priorRelease
	var live, release string
	_ = o.After("deploy", Func(func(c *Context) Outcome {
		live, release = runner.current, c.Paths().Release
		return Inherit()
	}))

	mustDeploy(t, o)
	if release != testRelease || live != testRelease {
		t.Errorf("after.deploy saw current = %q release = %q, want both %q", live, release, testRelease)
	}
}

func TestDeploy_BeforeSwapSeesPriorRelease(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.current = priorRelease
	var live string
	_ = o.Before("SwapSymlink", Func(func(c *Context) Outcome {
		live = runner.current
		return Inherit()
	}))

	mustDeploy(t, o)
	if live != priorRelease {
		t.Errorf("before.swap-symlink saw current = %q, want %q", live, priorRelease)
	}
	if runner.current != testRelease {
		t.Errorf("current = %q after deploy", runner.current)
	}
}

func TestDeploy_UnknownTaskBeforeAnyCommand(t *testing.T) {
	o, runner := newTestOrchestrator(t, WithPipeline(Pipeline{Tasks: []string{"setup", "compile-assets"}}))

	report, err := o.Deploy(context.Background())
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	var ute *domain.UnknownTaskError
	if !errors.As(err, &ute) || ute.Name != "compile-assets" || ute.Caller != "deploy" {
		t.Fatalf("error = %v, want UnknownTaskError for compile-assets", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("commands ran: %v", runner.calls)
	}
}

func TestValidate_RequiredNames(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Require("release-db", "migrate", "warm_cache")

	var ute *domain.UnknownTaskError
	if err := o.Validate(); !errors.As(err, &ute) || ute.Name != "warm-cache" || ute.Caller != "release-db" {
		t.Fatalf("Validate() error = %v, want warm-cache referenced by release-db", err)
	}
	mustRegister(t, o, "warm-cache", Command("php artisan cache:warm"))
	if err := o.Validate(); err != nil {
		t.Errorf("Validate() error after registration: %v", err)
	}
}

func TestDeploy_HaltAtLock(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.exits[lockCheck] = 1

	report := mustDeploy(t, o)
	if report.Verdict != domain.VerdictHalted || report.FailedTask != "lock" {
		t.Fatalf("result = %s at %q", report.Verdict, report.FailedTask)
	}
	if !strings.Contains(report.Message, domain.ErrDeploymentLocked.Error()) {
		t.Errorf("Message = %q", report.Message)
	}
	if runner.ran("mkdir -p " + testRelease) {
		t.Error("release created while locked")
	}
}

func TestDeploy_InitListeners(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	var order []string
	_ = o.Bus().Subscribe(domain.PhaseInit, "deploy", recorder(&order, "init"))
	_ = o.Before("primer", recorder(&order, "before.primer"))

	mustDeploy(t, o)
	if len(order) != 2 || order[0] != "init" {
		t.Errorf("order = %v, want init first", order)
	}

	// a halting init listener stops the run before any task
	o2, runner2 := newTestOrchestrator(t)
	_ = o2.Bus().Subscribe(domain.PhaseInit, "deploy", halter(&order, "gate", "freeze in effect"))
	report := mustDeploy(t, o2)
	if report.Verdict != domain.VerdictHalted || report.Message != "freeze in effect" {
		t.Errorf("result = %s %q", report.Verdict, report.Message)
	}
	if len(runner2.calls) != 0 || len(report.Results) != 0 {
		t.Errorf("tasks ran after init halt: %v", runner2.calls)
	}
}

func TestDeploy_ContinueOnFailure(t *testing.T) {
	o, runner := newTestOrchestrator(t, WithPipeline(Pipeline{
		Name:              "Ship",
		Tasks:             []string{"lint", "build", "notify"},
		ContinueOnFailure: true,
	}))
	runner.exits["eslint ."] = 1
	mustRegister(t, o, "lint", Command("eslint ."))
	mustRegister(t, o, "build", Command("npm run build"))
	mustRegister(t, o, "notify", Command("curl -s hooks/deployed"))

	report := mustDeploy(t, o)
	if report.Verdict != domain.VerdictFailure || report.FailedTask != "lint" {
		t.Fatalf("result = %s at %q", report.Verdict, report.FailedTask)
	}
	if !runner.ran("npm run build") || !runner.ran("curl -s hooks/deployed") {
		t.Errorf("later tasks should still run: %v", runner.calls)
	}
	if report.Deployment.Pipeline != "ship" || !o.Registry().Has("ship") {
		t.Errorf("pipeline name = %q", report.Deployment.Pipeline)
	}
	if report.LastCompleted != "notify" {
		t.Errorf("LastCompleted = %q", report.LastCompleted)
	}
}

func TestDeploy_ContinueOnFailureStillStopsOnHalt(t *testing.T) {
	o, runner := newTestOrchestrator(t, WithPipeline(Pipeline{
		Tasks:             []string{"gate", "build"},
		ContinueOnFailure: true,
	}))
	mustRegister(t, o, "gate", Func(func(c *Context) Outcome {
		c.Halt("release freeze")
		return Inherit()
	}))
	mustRegister(t, o, "build", Command("npm run build"))

	report := mustDeploy(t, o)
	if report.Verdict != domain.VerdictHalted || report.FailedTask != "gate" {
		t.Errorf("result = %s at %q", report.Verdict, report.FailedTask)
	}
	if runner.ran("npm run build") {
		t.Error("task ran after halt")
	}
}

func TestDeploy_ErrorListenerOnPipeline(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.exits["make test"] = 1
	mustRegister(t, o, "test", Command("make test"))
	var failed string
	_ = o.OnError("deploy", Func(func(c *Context) Outcome {
		failed = string(c.Verdict())
		return Inherit()
	}))

	report := mustDeploy(t, o)
	if report.OK() || failed != string(domain.VerdictFailure) {
		t.Errorf("verdict = %s, error listener saw %q", report.Verdict, failed)
	}
}
