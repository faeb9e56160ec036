// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

const storedHash = "$argon2id$v=19$m=65536,t=1,p=4$c29tZXNhbHQ$c29tZWhhc2g" //nolint:gosec // G101: not a credential

func newStoredUser(t *testing.T, email string) *auth.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, err := auth.NewUser(auth.MustEmailAddress(email), storedHash, now)
	require.NoError(t, err)
	return user
}

func cleanupUser(t *testing.T, user *auth.User) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
}

func TestUserRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("round-trips a fresh user", func(t *testing.T) {
		user := newStoredUser(t, "RoundTrip@example.com")

		require.NoError(t, repo.Save(ctx, user))
		cleanupUser(t, user)

		stored, err := repo.FindByEmail(ctx, "roundtrip@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
		assert.Equal(t, "RoundTrip@example.com", stored.Email.Raw())
		assert.Equal(t, "roundtrip@example.com", stored.Email.Normalized())
		assert.Equal(t, storedHash, stored.PasswordHash)
		assert.Zero(t, stored.FailedLoginAttempts)
		assert.Nil(t, stored.LockedUntil)
		assert.Nil(t, stored.LastLoginAt)
		assert.WithinDuration(t, user.CreatedAt, stored.CreatedAt, time.Microsecond)

		byID, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byID.ID)
	})

	t.Run("round-trips lockout and login audit state", func(t *testing.T) {
		user := newStoredUser(t, "locked@example.com")
		now := time.Now().UTC().Truncate(time.Microsecond)
		for range auth.LockoutThreshold {
			user.RecordFailedLogin(now)
		}

		require.NoError(t, repo.Save(ctx, user))
		cleanupUser(t, user)

		stored, err := repo.FindByEmail(ctx, "locked@example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.LockoutThreshold, stored.FailedLoginAttempts)
		require.NotNil(t, stored.LockedUntil)
		assert.WithinDuration(t, now.Add(auth.LockoutDuration), *stored.LockedUntil, time.Microsecond)

		// Successful login clears the lock and stamps audit fields.
		stored.RecordSuccessfulLogin(now, "192.0.2.1", "integration-test/1.0")
		require.NoError(t, repo.Save(ctx, stored))

		again, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, again.FailedLoginAttempts)
		assert.Nil(t, again.LockedUntil)
		require.NotNil(t, again.LastLoginAt)
		assert.Equal(t, "192.0.2.1", again.LastLoginIP)
		assert.Equal(t, "integration-test/1.0", again.LastLoginUserAgent)
	})

	t.Run("save is an upsert", func(t *testing.T) {
		user := newStoredUser(t, "upsert@example.com")
		require.NoError(t, repo.Save(ctx, user))
		cleanupUser(t, user)

		user.SetPasswordHash(storedHash+"v2", time.Now().UTC().Truncate(time.Microsecond))
		require.NoError(t, repo.Save(ctx, user))

		stored, err := repo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, storedHash+"v2", stored.PasswordHash)
	})

	t.Run("unknown email returns not found", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("unknown id returns not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate email maps to conflict", func(t *testing.T) {
		first := newStoredUser(t, "taken@example.com")
		require.NoError(t, repo.Save(ctx, first))
		cleanupUser(t, first)

		// Different ID, same address in a different case.
		second := newStoredUser(t, "Taken@example.com")
		err := repo.Save(ctx, second)
		require.Error(t, err)
		assert.Equal(t, auth.CodeConflict, auth.ErrorCode(err))
	})
}

func TestUserRepository_EmailExists_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	user := newStoredUser(t, "Exists@example.com")
	require.NoError(t, repo.Save(ctx, user))
	cleanupUser(t, user)

	exists, err := repo.EmailExists(ctx, "exists@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.EmailExists(ctx, "absent@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}
