// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package ratelimit

import (
	"context"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// ExemptLimiter wraps another Limiter with glob patterns for identifiers
// that bypass every check, such as health probes or trusted operator
// networks. Exempt identifiers are always allowed with a full window and
// consume nothing from the wrapped limiter.
type ExemptLimiter struct {
	inner    Limiter
	patterns []glob.Glob
}

var _ Limiter = (*ExemptLimiter)(nil)

// NewExemptLimiter compiles the glob patterns and wraps inner with them.
// Returns an error if any pattern is invalid.
func NewExemptLimiter(inner Limiter, patterns []string) (*ExemptLimiter, error) {
	if inner == nil {
		return nil, oops.Code("RATELIMIT_BAD_CONFIG").Errorf("inner limiter is required")
	}
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("RATELIMIT_BAD_PATTERN").
				With("pattern", pattern).
				Wrap(err)
		}
		compiled = append(compiled, g)
	}
	return &ExemptLimiter{inner: inner, patterns: compiled}, nil
}

// Check bypasses the wrapped limiter for exempt identifiers.
func (l *ExemptLimiter) Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error) {
	for _, g := range l.patterns {
		if g.Match(identifier) {
			return Decision{Allowed: true, Remaining: cfg.MaxRequests}, nil
		}
	}
	return l.inner.Check(ctx, identifier, action, cfg)
}

// Reset forwards to the wrapped limiter.
func (l *ExemptLimiter) Reset(ctx context.Context, identifier, action string) error {
	return l.inner.Reset(ctx, identifier, action)
}
