// Package health provides health and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const checkTimeout = 5 * time.Second

// Checker verifies one backing dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves the health endpoints over registered checkers.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	started  time.Time
}

// NewHandler creates a new health handler.
func NewHandler() *Handler {
	return &Handler{started: time.Now()}
}

// RegisterChecker adds a dependency checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// Response is the health endpoint payload.
type Response struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports overall status including dependency checks. A failing
// dependency degrades the status but still returns 200; use Ready for
// gating traffic.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())

	resp := Response{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Checks: checks,
	}
	if !healthy {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

// Live reports that the process is running. For liveness probes.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "live"})
}

// Ready returns 200 only when every registered dependency is healthy.
// For readiness probes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())

	resp := Response{Status: "ready", Checks: checks}
	status := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	healthy := true
	for _, c := range checkers {
		if err := c.Check(ctx); err != nil {
			results[c.Name()] = err.Error()
			healthy = false
		} else {
			results[c.Name()] = "ok"
		}
	}
	return results, healthy
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
