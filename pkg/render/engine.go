package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sceneforge/pkg/model"
	"sceneforge/pkg/render/fal"
	"sceneforge/pkg/tracker"
)

// Renderer turns a scene descriptor into rendered assets via one provider.
// The caller holds the provider lock for the duration of the call.
type Renderer interface {
	Render(ctx context.Context, p *Provider, desc *model.SceneDescriptor) (*model.SceneAssets, error)
}

// runner is the slice of the fal client the engine needs. Tests substitute
// a stub via newRunner.
type runner interface {
	Run(ctx context.Context, model string, args map[string]any) (map[string]any, error)
}

// Engine submits prompts to fal and maps responses to scene assets. One
// client per provider credential, created lazily.
type Engine struct {
	timeout time.Duration
	tracker *tracker.Tracker

	mu        sync.Mutex
	clients   map[string]runner
	newRunner func(apiKey string) runner
}

// NewEngine creates an Engine with the given per-call timeout.
func NewEngine(timeout time.Duration, tr *tracker.Tracker) *Engine {
	return &Engine{
		timeout:   timeout,
		tracker:   tr,
		clients:   make(map[string]runner),
		newRunner: func(apiKey string) runner { return fal.New(apiKey) },
	}
}

func (e *Engine) client(p *Provider) runner {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[p.ID]; ok {
		return c
	}
	c := e.newRunner(p.APIKey)
	e.clients[p.ID] = c
	return c
}

// Render submits the scene's prompts to the provider and returns the parsed
// assets. Failures bump the provider's failure counter; only categorical
// misconfiguration (bad key, unknown model) disables the provider.
func (e *Engine) Render(ctx context.Context, p *Provider, desc *model.SceneDescriptor) (*model.SceneAssets, error) {
	if p.APIKey == "" {
		p.Disable("API key missing")
		return nil, fmt.Errorf("provider %s has no API key", p.ID)
	}
	if desc.Prompts == nil {
		return nil, fmt.Errorf("scene %s has no prompts", desc.SceneID)
	}

	args := map[string]any{
		"prompt":          desc.Prompts.Base,
		"negative_prompt": desc.Prompts.Negative,
		"image_size":      p.Resolution,
		"num_images":      1,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := e.client(p).Run(callCtx, p.Model, args)
	if err != nil {
		p.RecordFailure()
		e.tracker.TrackRenderFailure(p.ID)
		var apiErr *fal.APIError
		if errors.As(err, &apiErr) && apiErr.Categorical() {
			p.Disable(fmt.Sprintf("status %d from model %s", apiErr.StatusCode, p.Model))
		}
		return nil, fmt.Errorf("render via %s failed: %w", p.ID, err)
	}

	assets, err := parseAssets(result, p, desc.SceneID)
	if err != nil {
		p.RecordFailure()
		e.tracker.TrackRenderFailure(p.ID)
		return nil, err
	}

	p.RecordSuccess()
	e.tracker.TrackRender(p.ID)
	slog.Info("Scene rendered",
		"scene", desc.SceneID,
		"provider", p.ID,
		"model", p.Model,
		"duration", time.Since(start).Round(time.Millisecond))
	return assets, nil
}

// parseAssets extracts the first image record from a fal response. Responses
// carry the image(s) under "images" or "image", as either a list or a
// single object; both keys accept both shapes.
func parseAssets(result map[string]any, p *Provider, sceneID string) (*model.SceneAssets, error) {
	raw := result["images"]
	if raw == nil {
		raw = result["image"]
	}
	if raw == nil {
		return nil, fmt.Errorf("provider %s returned no image", p.ID)
	}

	record, err := firstImageRecord(raw, p, sceneID)
	if err != nil {
		return nil, err
	}

	url := firstString(record, "url", "signed_url", "image_url")
	if url == "" {
		return nil, fmt.Errorf("provider %s returned an image without a URL", p.ID)
	}

	thumbnail := firstString(record, "thumbnail", "thumbnail_url")
	if thumbnail == "" {
		thumbnail = url
	}

	return &model.SceneAssets{
		ImageURL:     url,
		ThumbnailURL: thumbnail,
		Width:        intField(record, "width"),
		Height:       intField(record, "height"),
		Provider:     "fal",
		Model:        p.Model,
	}, nil
}

func firstImageRecord(raw any, p *Provider, sceneID string) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("provider %s returned an empty image list", p.ID)
		}
		if len(v) > 1 {
			slog.Warn("Provider returned multiple images, using the first",
				"provider", p.ID, "scene", sceneID, "count", len(v))
		}
		obj, ok := v[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("provider %s returned a malformed image record", p.ID)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("provider %s returned a malformed image list", p.ID)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
