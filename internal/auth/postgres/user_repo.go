// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserRepository implements auth.UserRepository backed by PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a UserRepository using the given connection pool.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, failed_login_attempts, locked_until,
		last_login_at, last_login_ip, last_login_user_agent, password_hash,
		created_at, updated_at, password_changed_at`

// FindByEmail retrieves a user by normalized email address. Returns
// auth.ErrNotFound if no account exists for the address.
func (r *UserRepository) FindByEmail(ctx context.Context, normalized string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email_normalized = $1
	`, normalized)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}
	return user, nil
}

// FindByID retrieves a user by ID. Returns auth.ErrNotFound if no account
// with that ID exists.
func (r *UserRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// Save inserts the user or, when a row with the same ID already exists,
// updates it in place. A unique violation on the normalized email maps to
// a conflict error so callers can surface which field collided.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, email_normalized, password_hash,
			failed_login_attempts, locked_until,
			last_login_at, last_login_ip, last_login_user_agent,
			created_at, updated_at, password_changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			email_normalized = EXCLUDED.email_normalized,
			password_hash = EXCLUDED.password_hash,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			locked_until = EXCLUDED.locked_until,
			last_login_at = EXCLUDED.last_login_at,
			last_login_ip = EXCLUDED.last_login_ip,
			last_login_user_agent = EXCLUDED.last_login_user_agent,
			updated_at = EXCLUDED.updated_at,
			password_changed_at = EXCLUDED.password_changed_at
	`,
		user.ID.String(),
		user.Email.Raw(),
		user.Email.Normalized(),
		user.PasswordHash,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.LastLoginIP,
		user.LastLoginUserAgent,
		user.CreatedAt,
		user.UpdatedAt,
		user.PasswordChangedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrConflict("email")
		}
		return oops.Code("USER_SAVE_FAILED").
			With("operation", "upsert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// EmailExists reports whether an account already uses the normalized email
// address.
func (r *UserRepository) EmailExists(ctx context.Context, normalized string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email_normalized = $1)
	`, normalized).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EMAIL_CHECK_FAILED").
			With("operation", "check email exists").
			Wrap(err)
	}
	return exists, nil
}

// scanUser scans a user row. pgx.ErrNoRows is propagated unwrapped so
// callers can attach context-specific codes.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr              string
		email              string
		failedAttempts     int
		lockedUntil        *time.Time
		lastLoginAt        *time.Time
		lastLoginIP        string
		lastLoginUserAgent string
		passwordHash       string
		createdAt          time.Time
		updatedAt          time.Time
		passwordChangedAt  time.Time
	)

	err := row.Scan(&idStr, &email, &failedAttempts, &lockedUntil,
		&lastLoginAt, &lastLoginIP, &lastLoginUserAgent, &passwordHash,
		&createdAt, &updatedAt, &passwordChangedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with their own code
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user row").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			Wrap(err)
	}

	addr, err := auth.ParseEmailAddress(email)
	if err != nil {
		return nil, oops.Code("USER_INVALID_EMAIL").
			With("operation", "parse stored email").
			With("user_id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:                  id,
		Email:               addr,
		PasswordHash:        passwordHash,
		FailedLoginAttempts: failedAttempts,
		LockedUntil:         lockedUntil,
		LastLoginAt:         lastLoginAt,
		LastLoginIP:         lastLoginIP,
		LastLoginUserAgent:  lastLoginUserAgent,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
		PasswordChangedAt:   passwordChangedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
