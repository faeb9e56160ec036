package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// SweepDeps carries the constructors the sweep command builds its
// collaborators from. Tests swap in stubs; a nil field falls back to
// the real implementation.
type SweepDeps struct {
	// SweeperFactory builds the session sweeper from resolved
	// configuration. The returned cleanup func releases the sweeper's
	// resources (database pool, rate limiter). Defaults to buildSweeper.
	SweeperFactory func(ctx context.Context, conf *config.Config, reg prometheus.Registerer) (SessionSweeper, func(), error)

	// ObservabilityServerFactory builds the metrics and health probe
	// server. Defaults to observability.NewServer.
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer
}

// SessionSweeper is the slice of auth.Service the sweep command calls.
type SessionSweeper interface {
	SweepSessions(ctx context.Context) (int64, error)
}

// ObservabilityServer is the slice of observability.Server the sweep
// daemon manages.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
}

var (
	_ SessionSweeper      = (*auth.Service)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)
