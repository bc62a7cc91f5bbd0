package fal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fal-ai/flux/dev", r.URL.Path)
		assert.Equal(t, "Key secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "a castle at dusk", args["prompt"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]any{{"url": "https://img/1.png", "width": 1024, "height": 576}},
		})
	}))
	defer srv.Close()

	c := New("secret")
	c.SetBaseURL(srv.URL)

	result, err := c.Run(context.Background(), "fal-ai/flux/dev", map[string]any{"prompt": "a castle at dusk"})
	require.NoError(t, err)

	images, ok := result["images"].([]any)
	require.True(t, ok)
	require.Len(t, images, 1)
}

func TestRun_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("bad")
	c.SetBaseURL(srv.URL)

	_, err := c.Run(context.Background(), "fal-ai/flux/dev", map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, apiErr.Categorical())
}

func TestRun_TransientErrorNotCategorical(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("k")
	c.SetBaseURL(srv.URL)

	_, err := c.Run(context.Background(), "fal-ai/flux/dev", map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Categorical())
}

func TestRun_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("k")
	c.SetBaseURL(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, "fal-ai/flux/dev", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
