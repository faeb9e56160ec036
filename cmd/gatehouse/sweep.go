// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/ratelimit"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// sweepConfig holds configuration for the sweep command.
type sweepConfig struct {
	once bool
}

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cfg := &sweepConfig{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the session sweep daemon",
		Long: `Periodically deletes expired sessions from the database. The daemon
exposes Prometheus metrics and health probes while it runs; readiness
reflects the outcome of the most recent sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweepWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().BoolVar(&cfg.once, "once", false, "run a single sweep and exit")
	registerConfigFlags(cmd.Flags())

	return cmd
}

// runSweepWithDeps starts the sweep daemon with injectable dependencies.
// If deps is nil, default implementations are used.
func runSweepWithDeps(ctx context.Context, cfg *sweepConfig, cmd *cobra.Command, deps *SweepDeps) error {
	if deps == nil {
		deps = &SweepDeps{}
	}
	if deps.SweeperFactory == nil {
		deps.SweeperFactory = buildSweeper
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse-sweep", version, conf.Log.Format, conf.Log.Level)

	// Readiness tracks the outcome of the most recent sweep.
	var lastSweepOK atomic.Bool

	var obsServer ObservabilityServer
	var reg prometheus.Registerer
	if !cfg.once && conf.Metrics.Enabled {
		obsServer = deps.ObservabilityServerFactory(conf.Metrics.Addr, lastSweepOK.Load)
		reg = obsServer.Registry()
		auth.RegisterMetrics(reg)
	}

	sweeper, cleanup, err := deps.SweeperFactory(ctx, conf, reg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if cfg.once {
		count, err := sweeper.SweepSessions(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Swept %d expired sessions\n", count)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// The first sweep runs immediately so schema problems surface at
	// startup instead of one interval later. It runs before the
	// observability server starts so a fatal error here leaves nothing
	// to tear down.
	if _, err := sweeper.SweepSessions(ctx); err != nil {
		return err
	}
	lastSweepOK.Store(true)

	if obsServer != nil {
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return startErr
		}
		go watchObsServer(ctx, cancel, obsErrChan)
	}

	cmd.Println("Sweep daemon started")
	slog.Info("sweep daemon ready",
		"interval", conf.Session.SweepInterval.String(),
		"idle_ttl", conf.Session.IdleTTL.String(),
	)

	ticker := time.NewTicker(conf.Session.SweepInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			_, sweepErr := sweeper.SweepSessions(ctx)
			if sweepErr != nil {
				errutil.LogError(slog.Default(), "session sweep failed", sweepErr)
			}
			lastSweepOK.Store(sweepErr == nil)
		case sig := <-sigChan:
			slog.Info("shutdown signal received", "signal", sig.String())
			break loop
		case <-ctx.Done():
			slog.Info("context cancelled, stopping sweep loop")
			break loop
		}
	}

	slog.Info("sweep daemon stopping")

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("stopping observability server", "error", err)
		}
	}

	slog.Info("sweep daemon stopped")
	return nil
}

// buildSweeper wires the PostgreSQL-backed auth service the daemon sweeps
// through. The returned cleanup releases the pool and the limiter.
func buildSweeper(ctx context.Context, conf *config.Config, reg prometheus.Registerer) (SessionSweeper, func(), error) {
	pool, err := store.Connect(ctx, conf.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	limiter, closeLimiter, err := buildLimiter(conf, reg)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		closeLimiter()
		pool.Close()
	}

	users := postgres.NewUserRepository(pool)
	sessions := postgres.NewSessionRepository(pool, conf.Session.IdleTTL)

	svc, err := auth.NewServiceWithOptions(users, sessions, auth.NewArgon2idHasher(), limiter, auth.ServiceOptions{
		Policy:     conf.Password.Policy(),
		IPLimit:    conf.Login.IPLimit.Limit(),
		EmailLimit: conf.Login.EmailLimit.Limit(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return svc, cleanup, nil
}

// buildLimiter selects the limiter implementation: Redis-backed when
// enabled, otherwise in-process memory. Exempt patterns from the config
// wrap either one. The returned func releases the limiter's resources.
func buildLimiter(conf *config.Config, reg prometheus.Registerer) (ratelimit.Limiter, func(), error) {
	var inner ratelimit.Limiter
	var closeFn func()

	if conf.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		inner = ratelimit.NewRedisLimiter(client)
		closeFn = func() {
			if err := client.Close(); err != nil {
				slog.Warn("closing redis client", "error", err)
			}
		}
	} else {
		mem := ratelimit.NewMemoryLimiterWithRegistry(ratelimit.MemoryLimiterConfig{}, reg)
		inner = mem
		closeFn = mem.Close
	}

	if len(conf.Login.Exempt) == 0 {
		return inner, closeFn, nil
	}

	exempt, err := ratelimit.NewExemptLimiter(inner, conf.Login.Exempt)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return exempt, closeFn, nil
}

// watchObsServer cancels the daemon when the observability listener fails
// after startup. The error channel closing means a clean stop, not a
// failure.
func watchObsServer(ctx context.Context, cancel context.CancelFunc, errCh <-chan error) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			errutil.LogError(slog.Default(), "observability server failed", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
