package admin

import (
	"encoding/json"
	"net/http"

	"factorcorr/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateSource reports the model lifecycle state for readiness checks
type StateSource interface {
	State() model.State
}

// App serves the operator endpoints: metrics, health and profiling
type App struct {
	router *chi.Mux
	model  StateSource
}

// New builds the admin router
func New(m StateSource) *App {
	a := &App{router: chi.NewRouter(), model: m}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// ServeHTTP implements http.Handler
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Recoverer)
}

func (a *App) setupRoutes() {
	a.router.Handle("/metrics", promhttp.Handler())
	a.router.Get("/healthz", a.handleHealth)
	a.router.Get("/readyz", a.handleReady)
	a.router.Mount("/debug", middleware.Profiler())
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady is 200 once the model can serve predictions
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	state := a.model.State()
	status := http.StatusOK
	switch state {
	case model.StateUninitialized, model.StateInitializing:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": string(state)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
