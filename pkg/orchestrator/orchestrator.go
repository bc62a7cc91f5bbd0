// Package orchestrator coordinates the scene pipeline: synthesis,
// provider selection, duplicate suppression, persistence, and background
// retries. It is the single entry point the HTTP layer talks to.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sceneforge/pkg/config"
	"sceneforge/pkg/model"
	"sceneforge/pkg/render"
	"sceneforge/pkg/scene"
	"sceneforge/pkg/store"
	"sceneforge/pkg/tracker"
)

// ErrSceneNotFound is returned for lookups of unknown scene ids.
var ErrSceneNotFound = errors.New("scene not found")

// ErrNoRenderContext is returned when a rerender target has no stored
// request context to replay.
var ErrNoRenderContext = errors.New("scene has no stored render context")

// Orchestrator owns the render pipeline. One instance per process.
type Orchestrator struct {
	synth    *scene.Synthesizer
	pool     *render.Pool
	renderer render.Renderer
	store    store.SceneStore
	tracker  *tracker.Tracker

	maxRetries int
	retryDelay time.Duration

	dedupMu  sync.Mutex
	inFlight map[string]struct{} // sceneIds with an in-flight sync render

	retryMu    sync.Mutex
	retryTasks map[string]struct{} // sceneId -> pending retry

	retryWG sync.WaitGroup
}

// New wires the orchestrator from its parts.
func New(synth *scene.Synthesizer, pool *render.Pool, renderer render.Renderer, st store.SceneStore, tr *tracker.Tracker, cfg config.RenderConfig) *Orchestrator {
	return &Orchestrator{
		synth:      synth,
		pool:       pool,
		renderer:   renderer,
		store:      st,
		tracker:    tr,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelay),
		inFlight:   make(map[string]struct{}),
		retryTasks: make(map[string]struct{}),
	}
}

// Drain blocks until all background retry tasks have finished. Called on
// shutdown so in-flight retries can persist their outcome.
func (o *Orchestrator) Drain() {
	o.retryWG.Wait()
}

// acquireInFlight marks a sceneId as having an in-flight sync render.
// Returns false when one is already running.
func (o *Orchestrator) acquireInFlight(sceneID string) bool {
	o.dedupMu.Lock()
	defer o.dedupMu.Unlock()
	if _, ok := o.inFlight[sceneID]; ok {
		return false
	}
	o.inFlight[sceneID] = struct{}{}
	return true
}

func (o *Orchestrator) releaseInFlight(sceneID string) {
	o.dedupMu.Lock()
	delete(o.inFlight, sceneID)
	o.dedupMu.Unlock()
}

// Render synthesizes a scene for the request, attempts a synchronous render
// through a free provider, and persists the result.
func (o *Orchestrator) Render(ctx context.Context, req *model.RenderRequest) (*model.SceneRecord, error) {
	desc, err := o.synth.Synthesize(req)
	if err != nil {
		return nil, err
	}

	playerID := req.Player.Name
	if playerID == "" {
		playerID = "Unknown Hero"
	}
	turn := 0
	if req.GameState != nil {
		turn = req.GameState.TurnCount
	}

	rec := &model.SceneRecord{
		SceneID:         desc.SceneID,
		PlayerID:        playerID,
		Turn:            turn,
		Genre:           req.Genre,
		Status:          model.StatusPending,
		Scene:           desc,
		Prompts:         desc.Prompts,
		Context:         req,
		PreGeneratedKey: req.PreGeneratedKey,
		CreatedAt:       time.Now().UTC(),
	}

	if !o.acquireInFlight(desc.SceneID) {
		// Same preGeneratedKey arriving twice: return the in-flight scene
		// instead of rendering it a second time.
		o.tracker.TrackDedup(playerID)
		slog.Info("Duplicate render suppressed", "scene", desc.SceneID, "player", playerID)
		stored, err := o.store.FindBySceneID(ctx, desc.SceneID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			// The holder has not persisted its pending row yet.
			return rec, nil
		}
		return stored, nil
	}
	defer o.releaseInFlight(desc.SceneID)

	// A key whose scene already finished is served from the store rather
	// than rendered again; ready is terminal, so a repeated render with the
	// same key must never push the record back to pending.
	if req.PreGeneratedKey != "" {
		stored, err := o.store.FindBySceneID(ctx, desc.SceneID)
		if err != nil {
			return nil, fmt.Errorf("look up scene %s: %w", desc.SceneID, err)
		}
		if stored != nil && stored.Status == model.StatusReady {
			slog.Info("Scene already rendered, returning stored record", "scene", desc.SceneID, "player", playerID)
			return stored, nil
		}
	}

	if o.pool.Usable() == 0 {
		rec.Status = model.StatusOffline
		desc.Status = model.StatusOffline
		if err := o.store.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist offline scene: %w", err)
		}
		slog.Warn("No usable provider, scene offline", "scene", desc.SceneID)
		return rec, nil
	}

	// Persist as pending before rendering so status polls and duplicate
	// requests can see the scene while the render is in flight.
	if err := o.store.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist pending scene: %w", err)
	}

	if assets := o.tryRenderSync(ctx, desc); assets != nil {
		rec.Status = model.StatusReady
		rec.Assets = assets
		desc.Status = model.StatusReady
		desc.Assets = assets
		// The render itself takes precedence over bookkeeping: a failed
		// post-success write is logged, not surfaced.
		if err := o.store.Upsert(ctx, rec); err != nil {
			slog.Warn("Failed to persist ready scene", "scene", desc.SceneID, "error", err)
		}
		return rec, nil
	}

	// Every free provider failed or all were busy. Leave the scene pending
	// and hand off to the background retry path.
	o.scheduleRetry(desc)
	return rec, nil
}

// tryRenderSync walks the pool once in round-robin order, skipping busy
// providers instead of queueing behind them. Returns nil when no provider
// produced an image.
func (o *Orchestrator) tryRenderSync(ctx context.Context, desc *model.SceneDescriptor) *model.SceneAssets {
	size := o.pool.Size()
	tried := make(map[string]struct{}, size)

	for attempt := 0; attempt < size; attempt++ {
		p := o.pool.Next()
		if p == nil {
			return nil
		}
		if _, seen := tried[p.ID]; seen {
			continue
		}
		tried[p.ID] = struct{}{}

		if !p.Lock.TryLock() {
			slog.Debug("Provider busy, trying next", "provider", p.ID, "scene", desc.SceneID)
			continue
		}
		assets, err := o.renderer.Render(ctx, p, desc)
		p.Lock.Unlock()
		if err != nil {
			slog.Warn("Sync render attempt failed", "provider", p.ID, "scene", desc.SceneID, "error", err)
			continue
		}
		return assets
	}
	return nil
}

// scheduleRetry starts the background retry task for a pending scene.
// The provider is picked once, at scheduling time; retries queue on its
// lock rather than hopping between providers.
func (o *Orchestrator) scheduleRetry(desc *model.SceneDescriptor) {
	o.retryMu.Lock()
	if _, exists := o.retryTasks[desc.SceneID]; exists {
		o.retryMu.Unlock()
		return
	}
	o.retryTasks[desc.SceneID] = struct{}{}
	o.retryMu.Unlock()

	p := o.pool.Next()
	if p == nil {
		o.finishRetry(desc.SceneID, model.StatusOffline, nil)
		return
	}

	o.retryWG.Add(1)
	go func() {
		defer o.retryWG.Done()
		o.runRetries(p, desc)
	}()
}

func (o *Orchestrator) runRetries(p *render.Provider, desc *model.SceneDescriptor) {
	ctx := context.Background()

	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		o.tracker.TrackRetry(p.ID)
		slog.Info("Retrying render", "scene", desc.SceneID, "provider", p.ID, "attempt", attempt, "max", o.maxRetries)

		p.Lock.Lock()
		disabled := p.Disabled()
		var assets *model.SceneAssets
		var err error
		if !disabled {
			assets, err = o.renderer.Render(ctx, p, desc)
		}
		p.Lock.Unlock()

		if disabled {
			break
		}
		if err == nil {
			o.finishRetry(desc.SceneID, model.StatusReady, assets)
			return
		}
		slog.Warn("Retry attempt failed", "scene", desc.SceneID, "provider", p.ID, "attempt", attempt, "error", err)
		if attempt < o.maxRetries && o.retryDelay > 0 {
			time.Sleep(o.retryDelay)
		}
	}

	o.finishRetry(desc.SceneID, model.StatusOffline, nil)
}

// finishRetry records the terminal outcome of a retry task. The store
// ignores the write if the scene already reached ready.
func (o *Orchestrator) finishRetry(sceneID string, status model.SceneStatus, assets *model.SceneAssets) {
	defer func() {
		o.retryMu.Lock()
		delete(o.retryTasks, sceneID)
		o.retryMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.UpdateStatusAndAssets(ctx, sceneID, status, assets); err != nil {
		slog.Error("Failed to persist retry outcome", "scene", sceneID, "status", status, "error", err)
		return
	}
	slog.Info("Retry task finished", "scene", sceneID, "status", status)
}

// GetScene returns the stored record for a scene id.
func (o *Orchestrator) GetScene(ctx context.Context, sceneID string) (*model.SceneRecord, error) {
	rec, err := o.store.FindBySceneID(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrSceneNotFound
	}
	return rec, nil
}

// ListScenes returns a player's recent scenes, newest first.
func (o *Orchestrator) ListScenes(ctx context.Context, playerID string, limit int) ([]*model.SceneRecord, error) {
	return o.store.ListByPlayer(ctx, playerID, limit)
}

// Rerender replays the stored request context of an existing scene and
// produces a fresh scene with a new id. The original scene is untouched.
// A rerender arriving while one is already in flight for the same source
// scene returns the persisted record instead of a second render.
func (o *Orchestrator) Rerender(ctx context.Context, sceneID string) (*model.SceneRecord, error) {
	rec, err := o.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if rec.Context == nil {
		return nil, ErrNoRenderContext
	}

	if !o.acquireInFlight(sceneID) {
		o.tracker.TrackDedup(rec.PlayerID)
		slog.Info("Duplicate rerender suppressed", "scene", sceneID)
		return rec, nil
	}
	defer o.releaseInFlight(sceneID)

	slog.Info("Rerendering scene", "scene", sceneID, "player", rec.PlayerID)

	// Replay without the original key so the rerender mints a fresh id
	// instead of overwriting the source scene.
	replay := *rec.Context
	replay.PreGeneratedKey = ""
	return o.Render(ctx, &replay)
}

// ProviderStatus is one pool entry in the diagnostics snapshot.
type ProviderStatus struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Busy     bool   `json:"busy"`
	Failures int64  `json:"failures"`
	Disabled bool   `json:"disabled"`
	Reason   string `json:"reason,omitempty"`
}

// ProviderSnapshot is the diagnostics view of the provider pool.
type ProviderSnapshot struct {
	Provider     string                           `json:"provider"`
	Model        string                           `json:"model"`
	ProviderPool []ProviderStatus                 `json:"providerPool"`
	Stats        map[string]tracker.ProviderStats `json:"stats,omitempty"`
}

// Providers returns the current pool snapshot for diagnostics.
func (o *Orchestrator) Providers() ProviderSnapshot {
	snap := ProviderSnapshot{
		Provider: "offline",
		Model:    "",
		Stats:    o.tracker.Snapshot(),
	}
	if primary := o.pool.Primary(); primary != nil {
		snap.Provider = "fal"
		snap.Model = primary.Model
	}
	for _, p := range o.pool.Providers() {
		snap.ProviderPool = append(snap.ProviderPool, ProviderStatus{
			ID:       p.ID,
			Provider: "fal",
			Model:    p.Model,
			Busy:     p.Busy(),
			Failures: p.Failures(),
			Disabled: p.Disabled(),
			Reason:   p.DisabledReason(),
		})
	}
	return snap
}
