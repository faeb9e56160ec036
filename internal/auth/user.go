// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account lockout policy.
const (
	// LockoutThreshold is the number of consecutive failures that locks the account.
	LockoutThreshold = 5

	// LockoutDuration is how long the account stays locked once the threshold is hit.
	LockoutDuration = 15 * time.Minute
)

// User represents a registered account.
type User struct {
	ID                  ulid.ULID
	Email               EmailAddress
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	LastLoginUserAgent  string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	PasswordChangedAt   time.Time
}

// NewUser creates a User ready for persistence.
func NewUser(email EmailAddress, passwordHash string, now time.Time) (*User, error) {
	if email.IsZero() {
		return nil, oops.Code(CodeInternal).Errorf("email cannot be zero")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInternal).Errorf("password hash cannot be empty")
	}
	return &User{
		ID:                ulid.Make(),
		Email:             email,
		PasswordHash:      passwordHash,
		CreatedAt:         now,
		UpdatedAt:         now,
		PasswordChangedAt: now,
	}, nil
}

// IsLocked reports whether the account is locked at the given time.
// An expired lock reads as unlocked without mutating state.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RecordFailedLogin increments the failure counter and sets the lockout
// timestamp once the counter reaches LockoutThreshold. Callers reject
// attempts against locked accounts before invoking this, so an active lock
// is never extended.
func (u *User) RecordFailedLogin(now time.Time) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= LockoutThreshold {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
	}
	u.UpdatedAt = now
}

// RecordSuccessfulLogin clears failure state and stamps last-login metadata.
func (u *User) RecordSuccessfulLogin(now time.Time, ip, userAgent string) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	loginAt := now
	u.LastLoginAt = &loginAt
	u.LastLoginIP = ip
	u.LastLoginUserAgent = userAgent
	u.UpdatedAt = now
}

// SetPasswordHash replaces the stored hash and stamps the change time.
func (u *User) SetPasswordHash(hash string, now time.Time) {
	u.PasswordHash = hash
	u.PasswordChangedAt = now
	u.UpdatedAt = now
}

// UserRepository manages user persistence.
type UserRepository interface {
	// FindByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the address.
	FindByEmail(ctx context.Context, normalized string) (*User, error)

	// FindByID retrieves a user by ID.
	// Returns ErrNotFound if the user does not exist.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Save inserts the user, or updates the existing row with the same ID.
	Save(ctx context.Context, user *User) error

	// EmailExists reports whether any user has the normalized email.
	EmailExists(ctx context.Context, normalized string) (bool, error)
}
