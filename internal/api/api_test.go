package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/guoyu07/rocketeer/internal/app"
	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
	"github.com/guoyu07/rocketeer/internal/health"
	"github.com/guoyu07/rocketeer/internal/infra/sqlite"
)

type okRunner struct{}

func (okRunner) Run(_ context.Context, dir, command string) (domain.CommandResult, error) {
	return domain.CommandResult{Command: command, Dir: dir}, nil
}

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	o := orchestrator.New(okRunner{}, "/srv/app",
		orchestrator.WithLogger(t.Logf),
		orchestrator.WithApplication("shop"),
		orchestrator.WithObserver(app.NewHistoryRecorder(db)),
	)
	return NewServer(o, db), o, db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealth_NoChecker(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := get(t, srv.Handler(), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _, db := newTestServer(t)
	c := health.NewChecker(db, t.TempDir())
	c.AddCheck(health.Check{Name: "always", CheckFn: func(context.Context) error { return context.Canceled }})
	c.RunOnce(context.Background())
	srv.SetHealth(c)

	w := get(t, srv.Handler(), "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decode(t, w, &body)
	if body.Status != "degraded" || len(body.Checks) != 4 {
		t.Errorf("body = %+v", body)
	}
}

// ─── Status & Catalogue ─────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, o, _ := newTestServer(t)
	srv.SetVersion("1.2.3")
	if err := o.Bus().On("after.compile-assets", orchestrator.Noop); err != nil {
		t.Fatal(err)
	}
	h := srv.Handler()

	var status statusResponse
	decode(t, get(t, h, "/api/status"), &status)
	if status.Root != "/srv/app" || status.Pipeline != "deploy" || !status.History {
		t.Errorf("status = %+v", status)
	}
	if len(status.Tasks) != len(orchestrator.DefaultDeployTasks()) {
		t.Errorf("tasks = %v", status.Tasks)
	}
	if len(status.UnboundEvents) != 1 || status.UnboundEvents[0] != "after.compile-assets" {
		t.Errorf("unbound events = %v", status.UnboundEvents)
	}

	w := get(t, h, "/api/version")
	if !strings.Contains(w.Body.String(), "1.2.3") {
		t.Errorf("version body = %s", w.Body.String())
	}
}

func TestTasks(t *testing.T) {
	srv, o, _ := newTestServer(t)
	if err := o.Register("migrate", orchestrator.Command("php artisan migrate")); err != nil {
		t.Fatal(err)
	}
	if err := o.Before("migrate", orchestrator.Noop); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Tasks []struct {
			Name      string         `json:"name"`
			Origin    string         `json:"origin"`
			Listeners map[string]int `json:"listeners"`
		} `json:"tasks"`
	}
	decode(t, get(t, srv.Handler(), "/api/tasks"), &body)

	found := false
	for _, task := range body.Tasks {
		if task.Name == "migrate" {
			found = true
			if task.Origin != "override" || task.Listeners["before"] != 1 {
				t.Errorf("migrate = %+v", task)
			}
		}
	}
	if !found {
		t.Error("migrate missing from catalogue")
	}
}

// ─── Deployments ────────────────────────────────────────────────────────────

func TestDeployments_ListAndGet(t *testing.T) {
	srv, o, _ := newTestServer(t)
	h := srv.Handler()

	report, err := o.Deploy(context.Background())
	if err != nil || !report.OK() {
		t.Fatalf("Deploy() = %+v, %v", report, err)
	}

	var list struct {
		Deployments []domain.Deployment `json:"deployments"`
	}
	decode(t, get(t, h, "/api/deployments"), &list)
	if len(list.Deployments) != 1 || list.Deployments[0].ID != report.Deployment.ID {
		t.Fatalf("deployments = %+v", list.Deployments)
	}

	var one deploymentResponse
	decode(t, get(t, h, "/api/deployments/"+report.Deployment.ID[:8]), &one)
	if one.Deployment == nil || one.Deployment.Verdict != domain.VerdictSuccess || one.Deployment.Application != "shop" {
		t.Fatalf("deployment = %+v", one.Deployment)
	}
	if len(one.Tasks) != len(report.Results) {
		t.Errorf("tasks = %d, want %d", len(one.Tasks), len(report.Results))
	}
}

func TestDeployments_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := get(t, srv.Handler(), "/api/deployments")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deployments":[]`) {
		t.Errorf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestDeployments_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := get(t, h, "/api/deployments/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}
	if w := get(t, h, "/api/deployments?limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}

	disabled := NewServer(orchestrator.New(okRunner{}, "/srv/app"), nil).Handler()
	if w := get(t, disabled, "/api/deployments"); w.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d", w.Code)
	}
}

// ─── Metrics & CORS ─────────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if w := get(t, srv.Handler(), "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled status = %d", w.Code)
	}
	srv.EnableMetrics()
	if w := get(t, srv.Handler(), "/metrics"); w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}
}
