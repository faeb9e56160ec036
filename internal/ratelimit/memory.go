// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// Housekeeping defaults for the in-memory limiter.
const (
	// DefaultCleanupInterval is the interval at which the background goroutine
	// runs to prune stale keys.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultKeyMaxIdle is how long a key may sit untouched before cleanup
	// drops it.
	DefaultKeyMaxIdle = time.Hour
)

// MemoryLimiterConfig configures the in-memory limiter.
type MemoryLimiterConfig struct {
	// CleanupInterval is the interval at which background cleanup runs.
	// Defaults to DefaultCleanupInterval if zero.
	CleanupInterval time.Duration

	// KeyMaxIdle is the maximum idle age for a key before cleanup removes it.
	// Defaults to DefaultKeyMaxIdle if zero.
	KeyMaxIdle time.Duration

	// Clock overrides the time source. Defaults to time.Now.
	Clock func() time.Time
}

// keyState tracks the sliding window for a single (identifier, action) key.
type keyState struct {
	events       []time.Time
	blockedUntil time.Time
	lastTouched  time.Time
}

// MemoryLimiter is an in-process sliding-window Limiter. It is safe for
// concurrent use.
//
// State lives in memory only: limits reset when the process restarts and
// are not shared between replicas. The limiter runs a background goroutine
// to prune stale keys; call Close to stop it.
type MemoryLimiter struct {
	mu         sync.Mutex
	keys       map[string]*keyState
	keyMaxIdle time.Duration
	clock      func() time.Time

	// Background cleanup
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Metrics gauge for tracked key count (nil if no registry provided)
	keyGauge prometheus.Gauge
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an in-memory limiter. It starts a background
// goroutine for cleanup; call Close to stop it.
func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	return newMemoryLimiter(cfg, nil)
}

// NewMemoryLimiterWithRegistry creates an in-memory limiter and registers a
// tracked-key gauge with the provided Prometheus registry.
// It starts a background goroutine for cleanup; call Close to stop it.
func NewMemoryLimiterWithRegistry(cfg MemoryLimiterConfig, reg prometheus.Registerer) *MemoryLimiter {
	return newMemoryLimiter(cfg, reg)
}

func newMemoryLimiter(cfg MemoryLimiterConfig, reg prometheus.Registerer) *MemoryLimiter {
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	keyMaxIdle := cfg.KeyMaxIdle
	if keyMaxIdle <= 0 {
		keyMaxIdle = DefaultKeyMaxIdle
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	l := &MemoryLimiter{
		keys:       make(map[string]*keyState),
		keyMaxIdle: keyMaxIdle,
		clock:      clock,
		stopChan:   make(chan struct{}),
	}

	// Register key gauge if registry provided
	if reg != nil {
		l.keyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatehouse_ratelimiter_keys",
			Help: "Current number of tracked rate limiter keys",
		})
		reg.MustRegister(l.keyGauge)
	}

	// Start background cleanup goroutine
	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)

	return l
}

// Check records a request attempt and reports whether it is allowed.
func (l *MemoryLimiter) Check(_ context.Context, identifier, action string, cfg Config) (Decision, error) {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return Decision{}, oops.Code("RATELIMIT_BAD_CONFIG").
			With("max_requests", cfg.MaxRequests).
			With("window", cfg.Window.String()).
			Errorf("max requests and window must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	key := limiterKey(identifier, action)

	state, ok := l.keys[key]
	if !ok {
		state = &keyState{}
		l.keys[key] = state
	}
	state.lastTouched = now

	// Block check happens before any window scan, so a blocked key costs
	// O(1) per attempt no matter how many events it accumulated.
	if !state.blockedUntil.IsZero() {
		if now.Before(state.blockedUntil) {
			return Decision{RetryAfter: state.blockedUntil.Sub(now)}, nil
		}
		// Penalty served; the key starts over.
		state.blockedUntil = time.Time{}
		state.events = state.events[:0]
	}

	state.events = pruneThrough(state.events, now.Add(-cfg.Window))

	if len(state.events) >= cfg.MaxRequests {
		if cfg.BlockDuration > 0 {
			state.blockedUntil = now.Add(cfg.BlockDuration)
			return Decision{RetryAfter: cfg.BlockDuration}, nil
		}
		// No penalty configured: the caller can retry once the oldest
		// event slides out of the window.
		return Decision{RetryAfter: state.events[0].Sub(now.Add(-cfg.Window))}, nil
	}

	state.events = append(state.events, now)
	return Decision{Allowed: true, Remaining: cfg.MaxRequests - len(state.events)}, nil
}

// Reset clears all limit state for the key.
func (l *MemoryLimiter) Reset(_ context.Context, identifier, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, limiterKey(identifier, action))
	return nil
}

// pruneThrough drops events at or before the cutoff. Events are appended in
// order, so the first survivor ends the scan.
func pruneThrough(events []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(events) && !events[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return events
	}
	return append(events[:0], events[idx:]...)
}

// KeyCount returns the number of tracked keys. Useful for testing and
// monitoring.
func (l *MemoryLimiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Cleanup removes keys that have been idle for longer than maxIdle. Keys
// still serving a block penalty are kept regardless of idleness. This is
// called automatically by the background goroutine, but can also be called
// manually if immediate cleanup is desired.
func (l *MemoryLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	threshold := now.Add(-maxIdle)
	for key, state := range l.keys {
		if state.lastTouched.Before(threshold) && now.After(state.blockedUntil) {
			delete(l.keys, key)
		}
	}

	// Update metrics if gauge is registered
	if l.keyGauge != nil {
		l.keyGauge.Set(float64(len(l.keys)))
	}
}

// cleanupLoop runs periodic cleanup in the background.
func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup(l.keyMaxIdle)
		}
	}
}

// Close stops the background cleanup goroutine and releases resources.
// It blocks until the goroutine has stopped.
func (l *MemoryLimiter) Close() {
	close(l.stopChan)
	l.wg.Wait()
}
