// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

// Package integration provides end-to-end integration tests for Gatehouse.
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/ratelimit"
	"github.com/gatehouse/gatehouse/internal/store"
)

// testEnv holds the resources shared by the integration specs.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	connStr   string
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

// setupTestEnv starts PostgreSQL, runs migrations, and opens a pool.
func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	env := &testEnv{
		ctx:    ctx,
		cancel: cancel,
	}

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	env.connStr = connStr

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.Connect(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	return env, nil
}

// cleanup releases all test resources.
func (env *testEnv) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
	env.cancel()
}

// newAuthService builds a Service over the shared pool with its own
// in-memory limiter. Specs pass distinct emails so they never see each
// other's accounts.
func newAuthService(idleTTL time.Duration, opts auth.ServiceOptions) (*auth.Service, *ratelimit.MemoryLimiter) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	users := authpg.NewUserRepository(env.pool)
	sessions := authpg.NewSessionRepository(env.pool, idleTTL)
	service, err := auth.NewServiceWithOptions(users, sessions, auth.NewArgon2idHasher(), limiter, opts)
	Expect(err).NotTo(HaveOccurred())
	return service, limiter
}

// generousLimits keeps the rate limiter out of specs that are not about
// rate limiting.
func generousLimits() auth.ServiceOptions {
	return auth.ServiceOptions{
		IPLimit:    ratelimit.Config{MaxRequests: 1000, Window: time.Minute},
		EmailLimit: ratelimit.Config{MaxRequests: 1000, Window: time.Minute},
	}
}

var _ = Describe("Authentication Flow", func() {
	const (
		password = "Sup3rSecret"
		clientIP = "198.51.100.7"
		agent    = "integration-test/1.0"
	)

	Describe("Account lifecycle", func() {
		It("registers, logs in, resolves the session, and logs out", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, generousLimits())
			defer limiter.Close()

			By("registering a new account")
			user, err := service.Register(env.ctx, "lifecycle@example.com", password, password)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email.Normalized()).To(Equal("lifecycle@example.com"))
			Expect(user.PasswordHash).To(HavePrefix("$argon2id$"), "stored hash should be argon2id")

			By("logging in with the registered credentials")
			result, err := service.Login(env.ctx, "lifecycle@example.com", password, clientIP, agent)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Session.ID).To(HaveLen(64), "session ID should be 32 random bytes hex-encoded")
			Expect(result.User.ID).To(Equal(user.ID))

			By("verifying only the session hash is stored")
			var count int
			err = env.pool.QueryRow(env.ctx,
				`SELECT count(*) FROM sessions WHERE token_hash = $1`,
				auth.HashSessionID(result.Session.ID)).Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			By("resolving the session to its user")
			current, err := service.CurrentUser(env.ctx, result.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(current.ID).To(Equal(user.ID))

			By("logging out")
			Expect(service.Logout(env.ctx, result.Session.ID)).To(Succeed())

			_, err = service.CurrentUser(env.ctx, result.Session.ID)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))

			By("logging out again without error")
			Expect(service.Logout(env.ctx, result.Session.ID)).To(Succeed())
		})

		It("normalizes email case on registration and login", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, generousLimits())
			defer limiter.Close()

			user, err := service.Register(env.ctx, "Case.Sensitive@Example.COM", password, password)
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email.Normalized()).To(Equal("case.sensitive@example.com"))

			// A different casing reaches the same account.
			result, err := service.Login(env.ctx, "CASE.SENSITIVE@example.com", password, clientIP, agent)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.User.ID).To(Equal(user.ID))

			// And blocks re-registration.
			_, err = service.Register(env.ctx, "case.sensitive@EXAMPLE.com", password, password)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeConflict))
		})
	})

	Describe("Credential failures", func() {
		It("answers wrong passwords and unknown emails identically", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, generousLimits())
			defer limiter.Close()

			_, err := service.Register(env.ctx, "generic@example.com", password, password)
			Expect(err).NotTo(HaveOccurred())

			_, wrongErr := service.Login(env.ctx, "generic@example.com", "WrongPass1", clientIP, agent)
			Expect(wrongErr).To(HaveOccurred())
			Expect(auth.ErrorCode(wrongErr)).To(Equal(auth.CodeUnauthorized))

			_, unknownErr := service.Login(env.ctx, "nobody@example.com", "WrongPass1", clientIP, agent)
			Expect(unknownErr).To(HaveOccurred())
			Expect(auth.ErrorCode(unknownErr)).To(Equal(auth.CodeUnauthorized))

			// The two failures must be indistinguishable to the caller.
			Expect(wrongErr.Error()).To(Equal(unknownErr.Error()))
		})

		It("locks the account after repeated failures and keeps the lock opaque", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, generousLimits())
			defer limiter.Close()

			_, err := service.Register(env.ctx, "lockout@example.com", password, password)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < auth.LockoutThreshold; i++ {
				_, err := service.Login(env.ctx, "lockout@example.com", "WrongPass1", clientIP, agent)
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))
			}

			// Even the correct password is rejected while locked, with the
			// same generic error as a bad one.
			_, lockedErr := service.Login(env.ctx, "lockout@example.com", password, clientIP, agent)
			Expect(lockedErr).To(HaveOccurred())
			Expect(auth.ErrorCode(lockedErr)).To(Equal(auth.CodeUnauthorized))

			var lockedUntil *time.Time
			err = env.pool.QueryRow(env.ctx,
				`SELECT locked_until FROM users WHERE email_normalized = $1`,
				"lockout@example.com").Scan(&lockedUntil)
			Expect(err).NotTo(HaveOccurred())
			Expect(lockedUntil).NotTo(BeNil())
			Expect(lockedUntil.After(time.Now())).To(BeTrue(), "lock should extend into the future")
		})
	})

	Describe("Rate limiting", func() {
		It("limits repeated attempts against one account before touching credentials", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, auth.ServiceOptions{
				IPLimit: ratelimit.Config{MaxRequests: 1000, Window: time.Minute},
				// Default per-account limit: 5 attempts per 5 minutes.
			})
			defer limiter.Close()

			for i := 0; i < 5; i++ {
				_, err := service.Login(env.ctx, "email-limited@example.com", "WrongPass1", clientIP, agent)
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))
			}

			_, err := service.Login(env.ctx, "email-limited@example.com", "WrongPass1", clientIP, agent)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeRateLimited))
		})

		It("limits attempts from one address across many accounts", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, auth.ServiceOptions{
				EmailLimit: ratelimit.Config{MaxRequests: 1000, Window: time.Minute},
				// Default per-address limit: 10 attempts per minute.
			})
			defer limiter.Close()

			for i := 0; i < 10; i++ {
				email := fmt.Sprintf("ip-limited-%d@example.com", i)
				_, err := service.Login(env.ctx, email, "WrongPass1", "203.0.113.9", agent)
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))
			}

			_, err := service.Login(env.ctx, "ip-limited-last@example.com", "WrongPass1", "203.0.113.9", agent)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeRateLimited))

			// A different address is unaffected.
			_, err = service.Login(env.ctx, "ip-limited-other@example.com", "WrongPass1", "203.0.113.10", agent)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))
		})
	})

	Describe("Session expiry", func() {
		It("slides expiry on activity and sweeps idle sessions", func() {
			// A short TTL keeps this spec fast; activity timing drives the
			// assertions, not wall-clock precision.
			const idleTTL = time.Second

			service, limiter := newAuthService(idleTTL, generousLimits())
			defer limiter.Close()

			_, err := service.Register(env.ctx, "expiry@example.com", password, password)
			Expect(err).NotTo(HaveOccurred())

			result, err := service.Login(env.ctx, "expiry@example.com", password, clientIP, agent)
			Expect(err).NotTo(HaveOccurred())

			By("touching the session before the TTL elapses")
			time.Sleep(600 * time.Millisecond)
			_, err = service.CurrentUser(env.ctx, result.Session.ID)
			Expect(err).NotTo(HaveOccurred())

			By("the touch restarting the idle window")
			time.Sleep(600 * time.Millisecond)
			_, err = service.CurrentUser(env.ctx, result.Session.ID)
			Expect(err).NotTo(HaveOccurred(), "session should survive past its original expiry after activity")

			By("expiring once left idle past the TTL")
			time.Sleep(idleTTL + 200*time.Millisecond)
			_, err = service.CurrentUser(env.ctx, result.Session.ID)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))

			By("sweeping the expired row")
			swept, err := service.SweepSessions(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(swept).To(BeNumerically(">=", 1))

			var count int
			err = env.pool.QueryRow(env.ctx,
				`SELECT count(*) FROM sessions WHERE token_hash = $1`,
				auth.HashSessionID(result.Session.ID)).Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero(), "sweep should delete the expired row")
		})
	})

	Describe("Password change", func() {
		It("revokes existing sessions and requires the new password", func() {
			service, limiter := newAuthService(auth.DefaultSessionIdleTTL, generousLimits())
			defer limiter.Close()

			user, err := service.Register(env.ctx, "rotate@example.com", password, password)
			Expect(err).NotTo(HaveOccurred())

			result, err := service.Login(env.ctx, "rotate@example.com", password, clientIP, agent)
			Expect(err).NotTo(HaveOccurred())

			const newPassword = "Ev3nMoreSecret"
			Expect(service.ChangePassword(env.ctx, user.ID, password, newPassword)).To(Succeed())

			By("invalidating sessions opened under the old password")
			_, err = service.CurrentUser(env.ctx, result.Session.ID)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))

			By("rejecting the old password")
			_, err = service.Login(env.ctx, "rotate@example.com", password, clientIP, agent)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthorized))

			By("accepting the new password")
			_, err = service.Login(env.ctx, "rotate@example.com", newPassword, clientIP, agent)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
