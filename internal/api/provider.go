package api

import (
	"context"
	"log/slog"
	"net/http"

	"sceneforge/pkg/orchestrator"
)

// ProviderService exposes the provider pool snapshot.
type ProviderService interface {
	Providers() orchestrator.ProviderSnapshot
}

// StorePinger reports scene store connectivity for the health endpoint.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ProviderHandler handles provider diagnostics and health.
type ProviderHandler struct {
	svc   ProviderService
	store StorePinger
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(svc ProviderService, store StorePinger) *ProviderHandler {
	return &ProviderHandler{svc: svc, store: store}
}

// HandleProviders handles GET /api/provider
func (h *ProviderHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Providers())
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status   string                        `json:"status"`
	DB       string                        `json:"db"`
	Provider orchestrator.ProviderSnapshot `json:"provider"`
}

// HandleHealth handles GET /health. The service reports degraded rather
// than failing the endpoint when a dependency is down.
func (h *ProviderHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		DB:       "ok",
		Provider: h.svc.Providers(),
	}
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("Health check: store unreachable", "error", err)
		resp.Status = "degraded"
		resp.DB = "unreachable"
	}
	if resp.Provider.Provider == "offline" {
		resp.Status = "degraded"
	}
	writeJSON(w, resp)
}
