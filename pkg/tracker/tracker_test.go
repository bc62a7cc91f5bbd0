package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "fal-1"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackRender(provider)
	tr.TrackRenderFailure(provider)
	tr.TrackRetry(provider)
	tr.TrackDedup(provider)

	// Verify Snapshot
	stats = tr.Snapshot()
	pStats, ok := stats[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.Renders != 1 {
		t.Errorf("Expected 1 Render, got %d", pStats.Renders)
	}
	if pStats.RenderFailure != 1 {
		t.Errorf("Expected 1 RenderFailure, got %d", pStats.RenderFailure)
	}
	if pStats.Retries != 1 {
		t.Errorf("Expected 1 Retry, got %d", pStats.Retries)
	}
	if pStats.Dedup != 1 {
		t.Errorf("Expected 1 Dedup, got %d", pStats.Dedup)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.TrackRender("fal-1")
				tr.TrackRenderFailure("fal-2")
			}
		}()
	}
	wg.Wait()

	stats := tr.Snapshot()
	if stats["fal-1"].Renders != 800 {
		t.Errorf("Expected 800 renders, got %d", stats["fal-1"].Renders)
	}
	if stats["fal-2"].RenderFailure != 800 {
		t.Errorf("Expected 800 failures, got %d", stats["fal-2"].RenderFailure)
	}
}
