// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome constants for login attempt metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeUnknownEmail  = "unknown_email"
	OutcomeWrongPassword = "wrong_password"
	OutcomeLocked        = "locked"
)

// LoginAttempts is the counter for login attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_login_attempts_total",
		Help: "Total number of login attempts",
	},
	[]string{"outcome"},
)

// Registrations is the counter for completed registrations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Registrations = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "gatehouse_registrations_total",
		Help: "Total number of completed registrations",
	},
)

// Lockouts is the counter for accounts locked after repeated failures.
// Use RegisterMetrics to register this with a Prometheus registry.
var Lockouts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "gatehouse_account_lockouts_total",
		Help: "Total number of account lockouts",
	},
)

// RateLimitDenials is the counter for rate-limited login attempts by dimension.
// Use RegisterMetrics to register this with a Prometheus registry.
var RateLimitDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_ratelimit_denials_total",
		Help: "Total number of rate-limited login attempts",
	},
	[]string{"dimension"},
)

// PasswordVerifyDuration is the histogram for password verification latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var PasswordVerifyDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "gatehouse_password_verify_duration_seconds",
		Help:    "Password verification duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// SessionsSwept is the counter for expired sessions removed by the sweeper.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionsSwept = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "gatehouse_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// This must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Registrations)
	reg.MustRegister(Lockouts)
	reg.MustRegister(RateLimitDenials)
	reg.MustRegister(PasswordVerifyDuration)
	reg.MustRegister(SessionsSwept)
}

// RecordLoginAttempt increments the login attempt counter.
// Parameters:
//   - outcome: attempt result (use Outcome* constants)
func RecordLoginAttempt(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordRegistration increments the registration counter.
func RecordRegistration() {
	Registrations.Inc()
}

// RecordLockout increments the account lockout counter.
func RecordLockout() {
	Lockouts.Inc()
}

// RecordRateLimitDenial increments the rate-limit denial counter.
// Parameters:
//   - dimension: the limit dimension that tripped ("ip" or "email")
func RecordRateLimitDenial(dimension string) {
	RateLimitDenials.WithLabelValues(dimension).Inc()
}

// RecordPasswordVerifyDuration records the latency of one password verification.
func RecordPasswordVerifyDuration(duration time.Duration) {
	PasswordVerifyDuration.Observe(duration.Seconds())
}

// RecordSessionsSwept adds the count of sessions removed by one sweep.
func RecordSessionsSwept(count int64) {
	SessionsSwept.Add(float64(count))
}
