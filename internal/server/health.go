package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnreachable  = "unreachable"
)

// storeCheckTimeout bounds the store reachability probe.
const storeCheckTimeout = 2 * time.Second

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
	IsShutdown() bool
}

// HealthChecker serves liveness and readiness endpoints.
type HealthChecker struct {
	ready     atomic.Bool
	deps      Pinger
	startTime time.Time
}

// NewHealthChecker creates a HealthChecker. deps may be nil.
func NewHealthChecker(deps Pinger) *HealthChecker {
	h := &HealthChecker{
		deps:      deps,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns the readiness state.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the JSON body of the health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler serves /healthz.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		})
	})
}

// ReadinessHandler serves /readyz. It reports not ready while shutting down
// or when the store cannot be reached.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"ready": healthStatusOK}
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		}

		if h.deps != nil {
			if h.deps.IsShutdown() {
				checks["shutdown"] = healthStatusShuttingDown
				allOk = false
			} else {
				checks["shutdown"] = healthStatusOK
			}

			ctx, cancel := context.WithTimeout(r.Context(), storeCheckTimeout)
			defer cancel()
			if err := h.deps.Ping(ctx); err != nil {
				checks["store"] = healthStatusUnreachable
				allOk = false
			} else {
				checks["store"] = healthStatusOK
			}
		}

		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		status := http.StatusOK
		if !allOk {
			resp.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, resp)
	})
}

// RegisterHealthEndpoints registers /healthz and /readyz on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
}

func writeHealth(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
