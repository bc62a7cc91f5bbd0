package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/pkg/model"
	"sceneforge/pkg/orchestrator"
	"sceneforge/pkg/scene"
)

type fakeSceneService struct {
	renderFn   func(req *model.RenderRequest) (*model.SceneRecord, error)
	getFn      func(sceneID string) (*model.SceneRecord, error)
	rerenderFn func(sceneID string) (*model.SceneRecord, error)
	listFn     func(playerID string, limit int) ([]*model.SceneRecord, error)
}

func (f *fakeSceneService) Render(_ context.Context, req *model.RenderRequest) (*model.SceneRecord, error) {
	return f.renderFn(req)
}

func (f *fakeSceneService) GetScene(_ context.Context, sceneID string) (*model.SceneRecord, error) {
	return f.getFn(sceneID)
}

func (f *fakeSceneService) Rerender(_ context.Context, sceneID string) (*model.SceneRecord, error) {
	return f.rerenderFn(sceneID)
}

func (f *fakeSceneService) ListScenes(_ context.Context, playerID string, limit int) ([]*model.SceneRecord, error) {
	return f.listFn(playerID, limit)
}

func readyRecord(sceneID string) *model.SceneRecord {
	return &model.SceneRecord{
		SceneID:  sceneID,
		PlayerID: "Aria",
		Status:   model.StatusReady,
		Scene: &model.SceneDescriptor{
			SceneID: sceneID,
			Title:   "Aria's Serene Moment",
			Status:  model.StatusReady,
			Prompts: &model.ScenePrompts{Base: "secret", Negative: "secret"},
		},
		Assets:    &model.SceneAssets{ImageURL: "https://img/1.png", Provider: "fal"},
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sceneMux(svc SceneService) *http.ServeMux {
	h := NewSceneHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scene/render", h.HandleRender)
	mux.HandleFunc("GET /api/scene/status/{id}", h.HandleStatus)
	mux.HandleFunc("POST /api/scene/rerender/{id}", h.HandleRerender)
	mux.HandleFunc("GET /api/scenes", h.HandleList)
	return mux
}

func TestHandleRender_Success(t *testing.T) {
	svc := &fakeSceneService{
		renderFn: func(req *model.RenderRequest) (*model.SceneRecord, error) {
			assert.Equal(t, "Aria", req.Player.Name)
			return readyRecord("0123456789abcdef01234567"), nil
		},
	}

	body := `{"player":{"name":"Aria","class":"Ranger","level":3},"genre":"Fantasy","storyText":"Onward."}`
	req := httptest.NewRequest(http.MethodPost, "/api/scene/render", strings.NewReader(body))
	w := httptest.NewRecorder()
	sceneMux(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RenderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0123456789abcdef01234567", resp.SceneID)
	assert.Equal(t, model.StatusReady, resp.SceneStatus)
	require.NotNil(t, resp.SceneAssets)
	assert.Equal(t, "https://img/1.png", resp.SceneAssets.ImageURL)

	// Prompts never cross the boundary.
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), `"prompts"`)
}

func TestHandleRender_EmptyStoryText(t *testing.T) {
	svc := &fakeSceneService{
		renderFn: func(*model.RenderRequest) (*model.SceneRecord, error) {
			return nil, scene.ErrEmptyStoryText
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scene/render", strings.NewReader(`{"storyText":""}`))
	w := httptest.NewRecorder()
	sceneMux(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRender_MalformedBody(t *testing.T) {
	svc := &fakeSceneService{}

	req := httptest.NewRequest(http.MethodPost, "/api/scene/render", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	sceneMux(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatus(t *testing.T) {
	svc := &fakeSceneService{
		getFn: func(sceneID string) (*model.SceneRecord, error) {
			if sceneID == "0123456789abcdef01234567" {
				return readyRecord(sceneID), nil
			}
			return nil, orchestrator.ErrSceneNotFound
		},
	}
	mux := sceneMux(svc)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scene/status/0123456789abcdef01234567", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusReady, resp.SceneStatus)
	assert.Equal(t, "2026-08-01T12:00:00Z", resp.UpdatedAt)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scene/status/ffffffffffffffffffffffff", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRerender(t *testing.T) {
	svc := &fakeSceneService{
		rerenderFn: func(sceneID string) (*model.SceneRecord, error) {
			switch sceneID {
			case "0123456789abcdef01234567":
				return readyRecord("aaaaaaaaaaaaaaaaaaaaaaaa"), nil
			case "cccccccccccccccccccccccc":
				return nil, orchestrator.ErrNoRenderContext
			}
			return nil, orchestrator.ErrSceneNotFound
		},
	}
	mux := sceneMux(svc)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/scene/rerender/0123456789abcdef01234567", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", resp.SceneID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/scene/rerender/ffffffffffffffffffffffff", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Missing stored context is indistinguishable from not-found to callers.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/scene/rerender/cccccccccccccccccccccccc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleList(t *testing.T) {
	svc := &fakeSceneService{
		listFn: func(playerID string, limit int) ([]*model.SceneRecord, error) {
			assert.Equal(t, "Aria", playerID)
			assert.Equal(t, 5, limit)
			return []*model.SceneRecord{readyRecord("0123456789abcdef01234567")}, nil
		},
	}
	mux := sceneMux(svc)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scenes?player=Aria&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Scenes, 1)
	assert.Equal(t, "0123456789abcdef01234567", resp.Scenes[0].SceneID)
}

func TestHandleList_Validation(t *testing.T) {
	svc := &fakeSceneService{}
	mux := sceneMux(svc)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scenes", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing player")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scenes?player=Aria&limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "negative limit")
}
