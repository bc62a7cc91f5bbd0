package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/pkg/orchestrator"
)

type fakeProviderService struct {
	snap orchestrator.ProviderSnapshot
}

func (f *fakeProviderService) Providers() orchestrator.ProviderSnapshot { return f.snap }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func healthySnapshot() orchestrator.ProviderSnapshot {
	return orchestrator.ProviderSnapshot{
		Provider: "fal",
		Model:    "fal-ai/flux/dev",
		ProviderPool: []orchestrator.ProviderStatus{
			{ID: "fal-1", Provider: "fal", Model: "fal-ai/flux/dev"},
			{ID: "fal-2", Provider: "fal", Model: "fal-ai/flux/dev", Disabled: true, Reason: "invalid key"},
		},
	}
}

func TestHandleProviders(t *testing.T) {
	h := NewProviderHandler(&fakeProviderService{snap: healthySnapshot()}, &fakePinger{})

	w := httptest.NewRecorder()
	h.HandleProviders(w, httptest.NewRequest(http.MethodGet, "/api/provider", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap orchestrator.ProviderSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "fal", snap.Provider)
	require.Len(t, snap.ProviderPool, 2)
	assert.True(t, snap.ProviderPool[1].Disabled)
	assert.Equal(t, "invalid key", snap.ProviderPool[1].Reason)
}

func TestHandleHealth_OK(t *testing.T) {
	h := NewProviderHandler(&fakeProviderService{snap: healthySnapshot()}, &fakePinger{})

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.DB)
}

func TestHandleHealth_DegradedOnStoreFailure(t *testing.T) {
	h := NewProviderHandler(&fakeProviderService{snap: healthySnapshot()}, &fakePinger{err: errors.New("locked")})

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.DB)
}

func TestHandleHealth_DegradedWhenOffline(t *testing.T) {
	snap := healthySnapshot()
	snap.Provider = "offline"
	h := NewProviderHandler(&fakeProviderService{snap: snap}, &fakePinger{})

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.DB)
}
