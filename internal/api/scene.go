package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sceneforge/pkg/model"
	"sceneforge/pkg/orchestrator"
	"sceneforge/pkg/scene"
)

// SceneService defines the orchestrator surface the HTTP layer needs.
type SceneService interface {
	Render(ctx context.Context, req *model.RenderRequest) (*model.SceneRecord, error)
	GetScene(ctx context.Context, sceneID string) (*model.SceneRecord, error)
	Rerender(ctx context.Context, sceneID string) (*model.SceneRecord, error)
	ListScenes(ctx context.Context, playerID string, limit int) ([]*model.SceneRecord, error)
}

// SceneHandler handles scene render and lookup endpoints.
type SceneHandler struct {
	svc SceneService
}

// NewSceneHandler creates a new SceneHandler.
func NewSceneHandler(svc SceneService) *SceneHandler {
	return &SceneHandler{svc: svc}
}

// RenderResponse is the body for POST /api/scene/render.
type RenderResponse struct {
	SceneID         string                 `json:"sceneId"`
	Scene           *model.SceneDescriptor `json:"scene"`
	SceneStatus     model.SceneStatus      `json:"sceneStatus"`
	SceneAssets     *model.SceneAssets     `json:"sceneAssets,omitempty"`
	PreGeneratedKey string                 `json:"preGeneratedKey,omitempty"`
}

// StatusResponse is the body for status and rerender lookups.
type StatusResponse struct {
	SceneID     string                 `json:"sceneId"`
	Scene       *model.SceneDescriptor `json:"scene"`
	SceneStatus model.SceneStatus      `json:"sceneStatus"`
	SceneAssets *model.SceneAssets     `json:"sceneAssets,omitempty"`
	UpdatedAt   string                 `json:"updatedAt,omitempty"`
}

// ListResponse is the body for GET /api/scenes.
type ListResponse struct {
	Scenes []StatusResponse `json:"scenes"`
	Count  int              `json:"count"`
}

// HandleRender handles POST /api/scene/render
func (h *SceneHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	var req model.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("API: render request decode error", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.svc.Render(r.Context(), &req)
	if err != nil {
		if errors.Is(err, scene.ErrEmptyStoryText) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("API: render failed", "error", err)
		http.Error(w, "scene render failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, RenderResponse{
		SceneID:         rec.SceneID,
		Scene:           rec.Scene,
		SceneStatus:     rec.Status,
		SceneAssets:     rec.Assets,
		PreGeneratedKey: rec.PreGeneratedKey,
	})
}

// HandleStatus handles GET /api/scene/status/{id}
func (h *SceneHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetScene(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrSceneNotFound) {
			http.Error(w, "scene not found", http.StatusNotFound)
			return
		}
		slog.Error("API: status lookup failed", "error", err)
		http.Error(w, "scene lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusResponse(rec))
}

// HandleRerender handles POST /api/scene/rerender/{id}
func (h *SceneHandler) HandleRerender(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Rerender(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrSceneNotFound):
			http.Error(w, "scene not found", http.StatusNotFound)
		case errors.Is(err, orchestrator.ErrNoRenderContext):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			slog.Error("API: rerender failed", "error", err)
			http.Error(w, "scene rerender failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, statusResponse(rec))
}

// HandleList handles GET /api/scenes?player=NAME&limit=N
func (h *SceneHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		http.Error(w, "player query parameter is required", http.StatusBadRequest)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.svc.ListScenes(r.Context(), player, limit)
	if err != nil {
		slog.Error("API: scene list failed", "error", err)
		http.Error(w, "scene list failed", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{Scenes: make([]StatusResponse, 0, len(recs)), Count: len(recs)}
	for _, rec := range recs {
		resp.Scenes = append(resp.Scenes, statusResponse(rec))
	}
	writeJSON(w, resp)
}

func statusResponse(rec *model.SceneRecord) StatusResponse {
	resp := StatusResponse{
		SceneID:     rec.SceneID,
		Scene:       rec.Scene,
		SceneStatus: rec.Status,
		SceneAssets: rec.Assets,
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
