package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sceneforge/pkg/version"
)

// NewServer creates and configures the HTTP server.
func NewServer(addr, corsOrigin string, requestLog *slog.Logger, sceneH *SceneHandler, providerH *ProviderHandler) *http.Server {
	mux := http.NewServeMux()

	// Health and version
	mux.HandleFunc("GET /health", providerH.HandleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// Scene pipeline
	mux.HandleFunc("POST /api/scene/render", sceneH.HandleRender)
	mux.HandleFunc("GET /api/scene/status/{id}", sceneH.HandleStatus)
	mux.HandleFunc("POST /api/scene/rerender/{id}", sceneH.HandleRerender)
	mux.HandleFunc("GET /api/scenes", sceneH.HandleList)

	// Provider diagnostics
	mux.HandleFunc("GET /api/provider", providerH.HandleProviders)

	var handler http.Handler = mux
	handler = CORS(corsOrigin, handler)
	if requestLog != nil {
		handler = RequestLogger(requestLog, handler)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // sync renders can take a while
		IdleTimeout:  60 * time.Second,
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
