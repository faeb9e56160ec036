// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("creates valid user", func(t *testing.T) {
		email := auth.MustEmailAddress("alice@example.com")
		user, err := auth.NewUser(email, "$argon2id$hash", now)
		require.NoError(t, err)
		require.NotNil(t, user)

		assert.NotEqual(t, ulid.ULID{}, user.ID)
		assert.Equal(t, "alice@example.com", user.Email.Normalized())
		assert.Equal(t, "$argon2id$hash", user.PasswordHash)
		assert.Equal(t, 0, user.FailedLoginAttempts)
		assert.Nil(t, user.LockedUntil)
		assert.Nil(t, user.LastLoginAt)
		assert.Equal(t, now, user.CreatedAt)
		assert.Equal(t, now, user.UpdatedAt)
		assert.Equal(t, now, user.PasswordChangedAt)
	})

	t.Run("rejects zero email", func(t *testing.T) {
		user, err := auth.NewUser(auth.EmailAddress{}, "$argon2id$hash", now)
		assert.Nil(t, user)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
	})

	t.Run("rejects empty password hash", func(t *testing.T) {
		email := auth.MustEmailAddress("alice@example.com")
		user, err := auth.NewUser(email, "", now)
		assert.Nil(t, user)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
	})
}

func TestUser_IsLocked(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no lockout", func(t *testing.T) {
		u := &auth.User{}
		assert.False(t, u.IsLocked(now))
	})

	t.Run("future lockout", func(t *testing.T) {
		until := now.Add(time.Hour)
		u := &auth.User{LockedUntil: &until}
		assert.True(t, u.IsLocked(now))
	})

	t.Run("past lockout", func(t *testing.T) {
		until := now.Add(-time.Hour)
		u := &auth.User{LockedUntil: &until}
		assert.False(t, u.IsLocked(now))
	})

	t.Run("unlocked at the exact expiry instant", func(t *testing.T) {
		until := now
		u := &auth.User{LockedUntil: &until}
		// time.Before returns false when times are equal
		assert.False(t, u.IsLocked(now))
	})
}

func TestUser_RecordFailedLogin(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("increments counter", func(t *testing.T) {
		u := &auth.User{FailedLoginAttempts: 0}
		u.RecordFailedLogin(now)
		assert.Equal(t, 1, u.FailedLoginAttempts)
	})

	t.Run("no lockout below threshold", func(t *testing.T) {
		u := &auth.User{FailedLoginAttempts: auth.LockoutThreshold - 2}
		u.RecordFailedLogin(now)
		assert.Equal(t, auth.LockoutThreshold-1, u.FailedLoginAttempts)
		assert.Nil(t, u.LockedUntil)
	})

	t.Run("sets lockout at threshold", func(t *testing.T) {
		u := &auth.User{FailedLoginAttempts: auth.LockoutThreshold - 1}
		u.RecordFailedLogin(now)
		assert.Equal(t, auth.LockoutThreshold, u.FailedLoginAttempts)
		require.NotNil(t, u.LockedUntil)
		assert.Equal(t, now.Add(auth.LockoutDuration), *u.LockedUntil)
	})

	t.Run("re-arms the lock past the threshold", func(t *testing.T) {
		// A failure after an expired lock has let attempts through starts a
		// fresh lock from the current time.
		stale := now.Add(-time.Hour)
		u := &auth.User{
			FailedLoginAttempts: auth.LockoutThreshold,
			LockedUntil:         &stale,
		}
		u.RecordFailedLogin(now)
		assert.Equal(t, auth.LockoutThreshold+1, u.FailedLoginAttempts)
		require.NotNil(t, u.LockedUntil)
		assert.Equal(t, now.Add(auth.LockoutDuration), *u.LockedUntil)
	})

	t.Run("updates UpdatedAt", func(t *testing.T) {
		u := &auth.User{}
		u.RecordFailedLogin(now)
		assert.Equal(t, now, u.UpdatedAt)
	})
}

func TestUser_RecordSuccessfulLogin(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("resets failures and lockout", func(t *testing.T) {
		until := now.Add(time.Hour)
		u := &auth.User{
			FailedLoginAttempts: auth.LockoutThreshold,
			LockedUntil:         &until,
		}
		u.RecordSuccessfulLogin(now, "203.0.113.7", "Mozilla/5.0")
		assert.Equal(t, 0, u.FailedLoginAttempts)
		assert.Nil(t, u.LockedUntil)
	})

	t.Run("stamps last login metadata", func(t *testing.T) {
		u := &auth.User{}
		u.RecordSuccessfulLogin(now, "203.0.113.7", "Mozilla/5.0")
		require.NotNil(t, u.LastLoginAt)
		assert.Equal(t, now, *u.LastLoginAt)
		assert.Equal(t, "203.0.113.7", u.LastLoginIP)
		assert.Equal(t, "Mozilla/5.0", u.LastLoginUserAgent)
		assert.Equal(t, now, u.UpdatedAt)
	})
}

func TestUser_SetPasswordHash(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	u := &auth.User{
		PasswordHash:      "$argon2id$old",
		PasswordChangedAt: now.Add(-24 * time.Hour),
	}
	u.SetPasswordHash("$argon2id$new", now)
	assert.Equal(t, "$argon2id$new", u.PasswordHash)
	assert.Equal(t, now, u.PasswordChangedAt)
	assert.Equal(t, now, u.UpdatedAt)
}

func TestLockoutConstants(t *testing.T) {
	t.Run("threshold is 5 failures", func(t *testing.T) {
		assert.Equal(t, 5, auth.LockoutThreshold)
	})

	t.Run("lockout lasts 15 minutes", func(t *testing.T) {
		assert.Equal(t, 15*time.Minute, auth.LockoutDuration)
	})
}
