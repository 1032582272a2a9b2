package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports whether the service's dependencies are reachable.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a handler over named checks. Nil checks are skipped.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	active := make(map[string]HealthCheck, len(checks))
	for name, check := range checks {
		if check != nil {
			active[name] = check
		}
	}
	return &HealthHandler{checks: active}
}

// HealthResponse lists each dependency as "ok" or "unavailable".
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	pkghttp.WriteJSON(w, status, resp)
}
