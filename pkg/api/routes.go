// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package api wires the HTTP surface: validation, probes, metrics, and the
// circuit-breaker debug endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/modelguard/guardrail-gateway/pkg/appconsts"
	"github.com/modelguard/guardrail-gateway/pkg/metrics"
	"github.com/modelguard/guardrail-gateway/pkg/orchestrator"
	"github.com/modelguard/guardrail-gateway/pkg/resilience"
	"github.com/modelguard/guardrail-gateway/pkg/schema"
)

// Server holds the handler dependencies.
type Server struct {
	orch     *orchestrator.Orchestrator
	breakers *resilience.Registry
	prober   *Prober
	logger   *slog.Logger
}

// NewServer creates a Server. prober may be nil; the backend-health debug
// endpoint then returns 404.
func NewServer(orch *orchestrator.Orchestrator, breakers *resilience.Registry, prober *Prober, logger *slog.Logger) *Server {
	return &Server{
		orch:     orch,
		breakers: breakers,
		prober:   prober,
		logger:   logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/v1/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	debug := r.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/circuit-breakers", s.handleBreakerStatus).Methods(http.MethodGet)
	debug.HandleFunc("/circuit-breakers/{name}/close", s.handleForceClose).Methods(http.MethodPost)
	debug.HandleFunc("/circuit-breakers/{name}/open", s.handleForceOpen).Methods(http.MethodPost)
	if s.prober != nil {
		debug.Handle("/backend-health", s.prober.Handler()).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": appconsts.Name,
		"version": appconsts.Version,
		"health":  "/v1/health",
	})
}

// handleValidate is the main validation entry point. The only model-failure
// configuration mapped to an error response is "every enabled model failed",
// which returns 503.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-Key") == "" {
		writeDetail(w, http.StatusUnauthorized, "API key required")
		return
	}

	var req schema.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.orch.Validate(r.Context(), req.Text, nil, orchestrator.StrategyAnyFlag, req.RequestID)
	if err != nil {
		s.logger.Error("validation_failed", "error", err.Error())
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.PartialFailure && len(result.ModelResults) == 0 {
		writeDetail(w, http.StatusServiceUnavailable, "All model services unavailable")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready when at least one breaker admits requests. With
// no breakers created yet the gateway is ready: they appear on first use.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	breakers := s.breakers.All()

	if len(breakers) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "ready",
			"available_models": "all (not initialized)",
		})
		return
	}

	available := []string{}
	for name, cb := range breakers {
		if cb.AllowRequest() {
			available = append(available, name)
		}
	}
	sort.Strings(available)

	if len(available) == 0 {
		writeDetail(w, http.StatusServiceUnavailable, "No models available (all circuit breakers open)")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"available_models": available,
	})
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make(map[string]resilience.Status)
	for name, cb := range s.breakers.All() {
		statuses[name] = cb.Status()
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleForceClose(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.breakers.Get(name).ForceClose()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Circuit breaker for " + name + " forced closed",
	})
}

func (s *Server) handleForceOpen(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.breakers.Get(name).ForceOpen()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Circuit breaker for " + name + " forced open",
	})
}
