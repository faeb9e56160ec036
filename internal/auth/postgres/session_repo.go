// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// SessionRepository implements auth.SessionRepository backed by PostgreSQL.
//
// Rows are keyed by the SHA-256 hash of the session identifier; the raw
// identifier never reaches the database. Sessions idle past the TTL are
// invisible to reads and reclaimed by DeleteExpired.
type SessionRepository struct {
	pool    poolIface
	idleTTL time.Duration
	clock   func() time.Time
}

// NewSessionRepository creates a SessionRepository enforcing the given idle
// TTL. A non-positive TTL selects auth.DefaultSessionIdleTTL.
func NewSessionRepository(pool poolIface, idleTTL time.Duration) *SessionRepository {
	return NewSessionRepositoryWithClock(pool, idleTTL, nil)
}

// NewSessionRepositoryWithClock is NewSessionRepository with an overridden
// time source. A nil clock selects time.Now.
func NewSessionRepositoryWithClock(pool poolIface, idleTTL time.Duration, clock func() time.Time) *SessionRepository {
	if idleTTL <= 0 {
		idleTTL = auth.DefaultSessionIdleTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionRepository{pool: pool, idleTTL: idleTTL, clock: clock}
}

// cutoff is the oldest last-activity timestamp still considered live.
func (r *SessionRepository) cutoff() time.Time {
	return r.clock().Add(-r.idleTTL)
}

// FindByID retrieves a live session by its raw identifier. Returns
// auth.ErrNotFound for unknown and idle-expired sessions alike.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, created_at, last_activity_at
		FROM sessions
		WHERE token_hash = $1 AND last_activity_at >= $2
	`, auth.HashSessionID(id), r.cutoff())

	session, err := r.scanSession(id, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_FIND_FAILED").
			With("operation", "find session").
			Wrap(err)
	}
	return session, nil
}

// Save inserts the session.
func (r *SessionRepository) Save(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4)
	`,
		auth.HashSessionID(session.ID),
		session.UserID.String(),
		session.CreatedAt,
		session.LastActivityAt,
	)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a session. Deleting an absent session is not an error:
// logout is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE token_hash = $1
	`, auth.HashSessionID(id))
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteAllForUser removes every session belonging to the user.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_ALL_FAILED").
			With("operation", "delete sessions for user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// UpdateActivity advances the session's last-activity timestamp. Returns
// auth.ErrNotFound when the session is unknown or already idle-expired.
func (r *SessionRepository) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET last_activity_at = $2
		WHERE token_hash = $1 AND last_activity_at >= $3
	`, auth.HashSessionID(id), at, r.cutoff())
	if err != nil {
		return oops.Code("SESSION_UPDATE_ACTIVITY_FAILED").
			With("operation", "update session activity").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes sessions idle past the TTL and reports how many
// rows were reclaimed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE last_activity_at < $1
	`, r.cutoff())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a session row, reattaching the caller-supplied raw
// identifier. Callers are responsible for handling pgx.ErrNoRows.
func (r *SessionRepository) scanSession(id string, row pgx.Row) (*auth.Session, error) {
	var (
		userIDStr      string
		createdAt      time.Time
		lastActivityAt time.Time
	)

	err := row.Scan(&userIDStr, &createdAt, &lastActivityAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session row").
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse session user id").
			Wrap(err)
	}

	return &auth.Session{
		ID:             id,
		UserID:         userID,
		CreatedAt:      createdAt,
		LastActivityAt: lastActivityAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
