// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/ratelimit"
)

// ActionLogin is the rate limiter action for login attempts.
const ActionLogin = "login"

// Default login rate limits. Both dimensions must pass before credentials
// are even looked at.
var (
	// DefaultIPLoginLimit bounds attempts from one source address.
	DefaultIPLoginLimit = ratelimit.Config{MaxRequests: 10, Window: time.Minute}

	// DefaultEmailLoginLimit bounds attempts against one account and adds a
	// block penalty once tripped.
	DefaultEmailLoginLimit = ratelimit.Config{
		MaxRequests:   5,
		Window:        5 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service provides authentication operations.
//
// Session identifiers are bearer credentials; the Service never writes them
// to logs.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	limiter    ratelimit.Limiter
	policy     PasswordPolicy
	ipLimit    ratelimit.Config
	emailLimit ratelimit.Config
	clock      func() time.Time
	logger     *slog.Logger
}

// ServiceOptions tunes Service behavior. Zero values select the defaults.
type ServiceOptions struct {
	// Policy is the password strength policy. Zero value selects
	// DefaultPasswordPolicy.
	Policy PasswordPolicy

	// IPLimit is the per-source-address login limit. Zero value selects
	// DefaultIPLoginLimit.
	IPLimit ratelimit.Config

	// EmailLimit is the per-account login limit. Zero value selects
	// DefaultEmailLoginLimit.
	EmailLimit ratelimit.Config

	// Clock overrides the time source. Defaults to time.Now.
	Clock func() time.Time

	// Logger receives security events. Defaults to slog.Default.
	Logger *slog.Logger
}

// LoginResult is the outcome of a successful login. Session.ID is the
// bearer credential the caller presents on subsequent requests.
type LoginResult struct {
	User    *User
	Session *Session
}

// NewService creates a Service with default policy, limits, clock, and logger.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, limiter ratelimit.Limiter) (*Service, error) {
	return NewServiceWithOptions(users, sessions, hasher, limiter, ServiceOptions{})
}

// NewServiceWithOptions creates a Service with explicit options.
func NewServiceWithOptions(users UserRepository, sessions SessionRepository, hasher PasswordHasher, limiter ratelimit.Limiter, opts ServiceOptions) (*Service, error) {
	if users == nil {
		return nil, oops.Code(CodeInternal).Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code(CodeInternal).Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code(CodeInternal).Errorf("password hasher is required")
	}
	if limiter == nil {
		return nil, oops.Code(CodeInternal).Errorf("rate limiter is required")
	}

	policy := opts.Policy
	if policy == (PasswordPolicy{}) {
		policy = DefaultPasswordPolicy()
	}
	ipLimit := opts.IPLimit
	if ipLimit == (ratelimit.Config{}) {
		ipLimit = DefaultIPLoginLimit
	}
	emailLimit := opts.EmailLimit
	if emailLimit == (ratelimit.Config{}) {
		emailLimit = DefaultEmailLoginLimit
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		limiter:    limiter,
		policy:     policy,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Register creates a new account. Validation failures carry field-level
// detail; an address already in use is a conflict. Registration never
// creates a session: new users log in explicitly.
func (s *Service) Register(ctx context.Context, email, password, confirmPassword string) (*User, error) {
	fields := make(map[string]string)

	addr, parseErr := ParseEmailAddress(email)
	if parseErr != nil {
		for k, v := range FieldErrors(parseErr) {
			fields[k] = v
		}
	}
	if password != confirmPassword {
		fields["confirmPassword"] = "passwords do not match"
	}
	if policyErr := s.policy.Validate(password); policyErr != nil {
		for k, v := range FieldErrors(policyErr) {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return nil, ErrValidation(fields)
	}

	exists, err := s.users.EmailExists(ctx, addr.Normalized())
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "check email exists").
			Wrap(err)
	}
	if exists {
		return nil, ErrConflict("email")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(addr, hash, s.clock())
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "create user").
			Wrap(err)
	}

	if err := s.users.Save(ctx, user); err != nil {
		// A concurrent registration can slip past the existence check; the
		// unique index reports it as a conflict.
		if ErrorCode(err) == CodeConflict {
			return nil, err
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "save user").
			Wrap(err)
	}

	RecordRegistration()
	s.logger.Info("user registered",
		"event", "user_registered",
		"user_id", user.ID.String(),
	)

	return user, nil
}

// Login authenticates a user and creates a session.
//
// Checks run in a fixed order: per-IP rate limit, per-account rate limit,
// user lookup, lockout, password verification. Every credential failure
// returns the same generic error so callers cannot probe which addresses
// are registered; only rate-limit rejections read differently.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	now := s.clock()

	if err := s.checkLimit(ctx, ip, "ip", s.ipLimit); err != nil {
		return nil, err
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	if err := s.checkLimit(ctx, normalized, "email", s.emailLimit); err != nil {
		return nil, err
	}

	user, lookupErr := s.users.FindByEmail(ctx, normalized)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Verify against the decoy hash so unknown addresses cost the
			// same time as wrong passwords.
			_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // decoy verification only
			RecordLoginAttempt(OutcomeUnknownEmail)
			s.logger.Info("login failed",
				"event", "login_failed",
				"reason", "unknown_email",
			)
			return nil, ErrUnauthorized()
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	// Locked accounts are rejected before verification so the lock is never
	// extended, and with the generic error so lock state stays invisible.
	if user.IsLocked(now) {
		RecordLoginAttempt(OutcomeLocked)
		s.logger.Warn("login rejected for locked account",
			"event", "account_locked_rejection",
			"user_id", user.ID.String(),
		)
		return nil, ErrUnauthorized()
	}

	verifyStart := time.Now()
	valid, verifyErr := s.hasher.Verify(password, user.PasswordHash)
	RecordPasswordVerifyDuration(time.Since(verifyStart))
	if verifyErr != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !valid {
		user.RecordFailedLogin(now)
		if user.IsLocked(now) {
			RecordLockout()
			s.logger.Warn("account locked after repeated failures",
				"event", "account_locked",
				"user_id", user.ID.String(),
				"failed_attempts", user.FailedLoginAttempts,
			)
		}
		if err := s.users.Save(ctx, user); err != nil {
			s.logger.Warn("best-effort save after failed login did not persist",
				"operation", "record_failure",
				"user_id", user.ID.String(),
				"error", err.Error(),
			)
		}
		RecordLoginAttempt(OutcomeWrongPassword)
		s.logger.Info("login failed",
			"event", "login_failed",
			"reason", "wrong_password",
			"user_id", user.ID.String(),
		)
		return nil, ErrUnauthorized()
	}

	user.RecordSuccessfulLogin(now, ip, userAgent)

	// Upgrade legacy hashes inside the same save that records the success.
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			user.SetPasswordHash(newHash, now)
		}
	}

	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Warn("best-effort save after successful login did not persist",
			"operation", "record_success",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
	}

	session, err := NewSession(user.ID, now)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "create session").
			Wrap(err)
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "persist session").
			Wrap(err)
	}

	RecordLoginAttempt(OutcomeSuccess)
	s.logger.Info("login succeeded",
		"event", "session_created",
		"user_id", user.ID.String(),
	)

	return &LoginResult{User: user, Session: session}, nil
}

func (s *Service) checkLimit(ctx context.Context, identifier, dimension string, cfg ratelimit.Config) error {
	decision, err := s.limiter.Check(ctx, identifier, ActionLogin, cfg)
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "check rate limit").
			With("dimension", dimension).
			Wrap(err)
	}
	if decision.Allowed {
		return nil
	}
	RecordRateLimitDenial(dimension)
	s.logger.Warn("login rate limited",
		"event", "rate_limited",
		"dimension", dimension,
		"retry_after", decision.RetryAfter.String(),
	)
	return ErrRateLimited(decision.RetryAfter)
}

// Logout invalidates a session. Deleting an absent session succeeds:
// logout is idempotent, and repeated calls settle into the same signed-out
// state.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code(CodeInternal).
			With("operation", "delete session").
			Wrap(err)
	}
	s.logger.Info("session ended", "event", "session_ended")
	return nil
}

// CurrentUser resolves a session identifier to its user and touches the
// session's activity timestamp. Unknown, expired, and orphaned sessions all
// produce the same unauthorized error.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, ErrSessionUnauthorized()
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionUnauthorized()
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "find session").
			Wrap(err)
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A session without its user is a data inconsistency, not a
			// credential failure; log loudly but answer generically.
			s.logger.Error("session references missing user",
				"event", "orphaned_session",
				"user_id", session.UserID.String(),
			)
			return nil, ErrSessionUnauthorized()
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "find user").
			Wrap(err)
	}

	if err := s.sessions.UpdateActivity(ctx, sessionID, s.clock()); err != nil {
		s.logger.Warn("best-effort activity update did not persist",
			"operation", "update_activity",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
	}

	return user, nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, and replaces the stored hash. Every session for the user is
// deleted; clients must authenticate again.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized()
		}
		return oops.Code(CodeInternal).
			With("operation", "find user").
			Wrap(err)
	}

	valid, verifyErr := s.hasher.Verify(currentPassword, user.PasswordHash)
	if verifyErr != nil {
		return oops.Code(CodeInternal).
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !valid {
		s.logger.Warn("password change rejected",
			"event", "password_change_rejected",
			"user_id", user.ID.String(),
		)
		return ErrUnauthorized()
	}

	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "hash password").
			Wrap(err)
	}

	user.SetPasswordHash(newHash, s.clock())
	if err := s.users.Save(ctx, user); err != nil {
		return oops.Code(CodeInternal).
			With("operation", "save user").
			Wrap(err)
	}

	// Sessions opened under the old password die with it.
	if err := s.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		return oops.Code(CodeInternal).
			With("operation", "delete sessions").
			Wrap(err)
	}

	s.logger.Info("password changed",
		"event", "password_changed",
		"user_id", user.ID.String(),
	)

	return nil
}

// SweepSessions deletes idle-expired sessions and returns the count removed.
// The sweep daemon calls this periodically; repositories already hide
// expired sessions from reads, so sweeping only reclaims storage.
func (s *Service) SweepSessions(ctx context.Context) (int64, error) {
	count, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code(CodeInternal).
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	if count > 0 {
		RecordSessionsSwept(count)
		s.logger.Info("expired sessions swept",
			"event", "sessions_swept",
			"count", count,
		)
	}
	return count, nil
}
