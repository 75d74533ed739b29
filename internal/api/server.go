// Package api provides the read-only HTTP API: health, deployment history,
// the task catalogue and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guoyu07/rocketeer/internal/app/orchestrator"
	"github.com/guoyu07/rocketeer/internal/domain"
	"github.com/guoyu07/rocketeer/internal/health"
)

// DefaultListLimit caps /api/deployments when no limit is given.
const DefaultListLimit = 20

// Server is the rocketeer HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	history        domain.HistoryStore // nil when history is disabled
	checker        *health.Checker
	metricsEnabled bool
	version        string
}

// NewServer creates a new API server. history may be nil.
func NewServer(o *orchestrator.Orchestrator, history domain.HistoryStore) *Server {
	return &Server{orch: o, history: history, version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// SetVersion sets the version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
		})
		r.Get("/tasks", s.handleTasks)
		r.Get("/deployments", s.handleListDeployments)
		r.Get("/deployments/{id}", s.handleGetDeployment)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

type statusResponse struct {
	Root          string   `json:"root"`
	Pipeline      string   `json:"pipeline"`
	Tasks         []string `json:"tasks"`
	History       bool     `json:"history"`
	UnboundEvents []string `json:"unbound_events,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.orch.Pipeline()
	writeJSON(w, http.StatusOK, statusResponse{
		Root:          s.orch.Root(),
		Pipeline:      p.Name,
		Tasks:         p.Tasks,
		History:       s.history != nil,
		UnboundEvents: s.orch.UnboundEvents(),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.orch.Catalogue()})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "deployment history is disabled")
		return
	}
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	deps, err := s.history.ListDeployments(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if deps == nil {
		deps = []domain.Deployment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deployments": deps})
}

type deploymentResponse struct {
	Deployment *domain.Deployment  `json:"deployment"`
	Tasks      []domain.TaskRecord `json:"tasks"`
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "deployment history is disabled")
		return
	}
	dep, err := s.history.GetDeployment(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrDeploymentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.history.ListTaskRecords(dep.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []domain.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, deploymentResponse{Deployment: dep, Tasks: records})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for dashboards served from elsewhere.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
