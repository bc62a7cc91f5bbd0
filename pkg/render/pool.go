// Package render holds the image-generation side of the orchestrator: the
// provider pool with per-provider locking and failure accounting, and the
// engine that turns a scene descriptor into rendered assets.
package render

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"sceneforge/pkg/config"
)

// Provider is one image-generation backend slot. At most one render goes
// through a provider at a time (Lock); failures only bump the counter,
// disabling is reserved for categorical misconfiguration and is permanent
// for the process lifetime.
type Provider struct {
	ID         string
	APIKey     string
	Model      string
	Resolution string

	// Lock serializes renders through this provider. The sync path uses
	// TryLock and hops to the next free provider instead of queueing.
	Lock sync.Mutex

	failures atomic.Int64
	disabled atomic.Bool

	reasonMu       sync.Mutex
	disabledReason string
}

// Failures returns the current failure count.
func (p *Provider) Failures() int64 { return p.failures.Load() }

// RecordFailure increments the failure counter. Called with Lock held.
func (p *Provider) RecordFailure() { p.failures.Add(1) }

// RecordSuccess resets the failure counter. Called with Lock held.
func (p *Provider) RecordSuccess() { p.failures.Store(0) }

// Disabled reports whether the provider has been taken out of rotation.
func (p *Provider) Disabled() bool { return p.disabled.Load() }

// Disable permanently removes the provider from rotation (monotonic).
func (p *Provider) Disable(reason string) {
	p.reasonMu.Lock()
	p.disabledReason = reason
	p.reasonMu.Unlock()
	p.disabled.Store(true)
	slog.Error("Provider disabled", "provider", p.ID, "reason", reason)
}

// DisabledReason returns the reason recorded by Disable, if any.
func (p *Provider) DisabledReason() string {
	p.reasonMu.Lock()
	defer p.reasonMu.Unlock()
	return p.disabledReason
}

// Busy reports whether a render currently holds the provider lock.
// Snapshot-only; selection uses TryLock, not this.
func (p *Provider) Busy() bool {
	if p.Lock.TryLock() {
		p.Lock.Unlock()
		return false
	}
	return true
}

// Pool is the ordered set of providers with a round-robin cursor.
type Pool struct {
	providers []*Provider
	cursor    atomic.Uint64
}

// NewPool builds the pool from configured slots. Slots without an API key
// are dropped. An empty result is an error: the service cannot start
// without at least one usable provider.
func NewPool(slots []config.ProviderSlot) (*Pool, error) {
	var providers []*Provider
	for i, slot := range slots {
		label := slot.Label
		if label == "" {
			label = fmt.Sprintf("fal-%d", i+1)
		}
		if slot.Key == "" {
			slog.Warn("Skipping image provider: API key missing", "provider", label)
			continue
		}
		model := slot.Model
		if model == "" {
			model = config.DefaultModel
		}
		resolution := slot.Resolution
		if resolution == "" {
			resolution = config.DefaultResolution
		}
		providers = append(providers, &Provider{
			ID:         label,
			APIKey:     slot.Key,
			Model:      model,
			Resolution: resolution,
		})
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no image provider configured: set FAL_API_KEY (and optional _2/_3)")
	}
	return &Pool{providers: providers}, nil
}

// Size returns the number of providers in the pool.
func (p *Pool) Size() int { return len(p.providers) }

// Providers returns the ordered provider list for iteration/snapshots.
func (p *Pool) Providers() []*Provider { return p.providers }

// Next returns the provider whose round-robin turn it is, advancing the
// cursor. Disabled entries fall back to the primary (first non-disabled)
// provider; nil when every provider is disabled. Busy entries are NOT
// skipped here; the caller observes busyness via TryLock.
func (p *Pool) Next() *Provider {
	if len(p.providers) == 0 {
		return nil
	}
	idx := (p.cursor.Add(1) - 1) % uint64(len(p.providers))
	candidate := p.providers[idx]
	if !candidate.Disabled() {
		return candidate
	}
	return p.Primary()
}

// Primary returns the first non-disabled provider, or nil if none remain.
func (p *Pool) Primary() *Provider {
	for _, prov := range p.providers {
		if !prov.Disabled() {
			return prov
		}
	}
	return nil
}

// Usable returns the count of non-disabled providers.
func (p *Pool) Usable() int {
	n := 0
	for _, prov := range p.providers {
		if !prov.Disabled() {
			n++
		}
	}
	return n
}
