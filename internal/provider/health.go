// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package provider

import (
	"context"
	"sync"
	"time"

	dwellyerr "github.com/dwelly-dev/dwelly/pkg/errors"
	"github.com/dwelly-dev/dwelly/pkg/health"
)

// DefaultHealthCooldown is the duration after which a failed upstream
// becomes eligible again.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker tracks upstream health. An upstream is considered
// healthy until RecordFailure is called; after a failure it is marked
// unhealthy for a cooldown period, then becomes available again so
// recovery can be observed.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// NewHealthTracker creates a HealthTracker that starts healthy.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, dwellyerr.Errorf(dwellyerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked reports whether the upstream is healthy or the
// cooldown has elapsed. The caller MUST hold at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy returns true if the upstream is healthy or the cooldown has
// elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// RecordSuccess marks the upstream as healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the upstream as unhealthy and increments the
// cumulative failure count.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		FailureCount: h.failureCount,
	}

	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}

	m.Available = h.isHealthyLocked()
	if !h.healthy {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}

// TrackedEmbedder decorates an Embedder with health tracking. Invalid
// input is the caller's fault and does not count against the upstream.
type TrackedEmbedder struct {
	inner   Embedder
	tracker *HealthTracker
}

// NewTrackedEmbedder wraps an embedder so every call outcome feeds the
// given tracker.
func NewTrackedEmbedder(inner Embedder, tracker *HealthTracker) *TrackedEmbedder {
	return &TrackedEmbedder{inner: inner, tracker: tracker}
}

func (t *TrackedEmbedder) Name() string    { return t.inner.Name() }
func (t *TrackedEmbedder) Dimensions() int { return t.inner.Dimensions() }
func (t *TrackedEmbedder) Close() error    { return t.inner.Close() }

func (t *TrackedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := t.inner.Embed(ctx, text)
	t.record(err)
	return vector, err
}

func (t *TrackedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := t.inner.EmbedBatch(ctx, texts)
	t.record(err)
	return vectors, err
}

func (t *TrackedEmbedder) record(err error) {
	switch {
	case err == nil:
		t.tracker.RecordSuccess()
	case dwellyerr.IsInvalidInput(err):
	default:
		t.tracker.RecordFailure()
	}
}

// TrackedGenerator decorates a Generator with health tracking.
type TrackedGenerator struct {
	inner   Generator
	tracker *HealthTracker
}

// NewTrackedGenerator wraps a generator so every call outcome feeds the
// given tracker.
func NewTrackedGenerator(inner Generator, tracker *HealthTracker) *TrackedGenerator {
	return &TrackedGenerator{inner: inner, tracker: tracker}
}

func (t *TrackedGenerator) Name() string { return t.inner.Name() }
func (t *TrackedGenerator) Close() error { return t.inner.Close() }

func (t *TrackedGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	content, err := t.inner.Generate(ctx, req)
	switch {
	case err == nil:
		t.tracker.RecordSuccess()
	case dwellyerr.IsInvalidInput(err):
	default:
		t.tracker.RecordFailure()
	}
	return content, err
}
