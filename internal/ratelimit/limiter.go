// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package ratelimit provides sliding-window rate limiting keyed by
// (identifier, action) pairs, with an optional block penalty once a key
// trips its limit.
//
// Two implementations are provided: MemoryLimiter keeps state in-process
// and is the default; RedisLimiter shares state across replicas and
// survives restarts.
package ratelimit

import (
	"context"
	"time"
)

// Config describes the limit applied to one check.
type Config struct {
	// MaxRequests is the number of requests allowed inside Window.
	MaxRequests int

	// Window is the trailing interval over which requests are counted.
	Window time.Duration

	// BlockDuration, when non-zero, is the penalty applied once the limit
	// is exceeded: further checks fail in O(1) until the penalty expires,
	// without rescanning the window.
	BlockDuration time.Duration
}

// Decision is the outcome of one limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the window after this
	// one. Zero when the request was denied.
	Remaining int

	// RetryAfter is how long the caller must wait before a request can
	// succeed again. Zero when the request was allowed.
	RetryAfter time.Duration
}

// Limiter tracks request rates per (identifier, action) key. State for one
// key never bleeds into another. Implementations are safe for concurrent use.
type Limiter interface {
	// Check records a request attempt against the key and reports whether
	// it is allowed. Allowed requests consume one slot in the window;
	// denied requests consume nothing.
	Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error)

	// Reset clears all limit state for the key, including any block penalty.
	Reset(ctx context.Context, identifier, action string) error
}

func limiterKey(identifier, action string) string {
	return action + ":" + identifier
}
