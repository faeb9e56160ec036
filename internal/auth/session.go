// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session identifier configuration.
const (
	// SessionIDBytes is the entropy of a session identifier (64 hex chars).
	SessionIDBytes = 32

	// DefaultSessionIdleTTL is how long a session stays valid past its last
	// activity when no override is configured.
	DefaultSessionIdleTTL = 24 * time.Hour
)

// Session is an authenticated context for one user. The ID is the opaque
// bearer credential handed to the caller; repositories store only its
// SHA-256 hash, so session state at rest cannot be replayed.
type Session struct {
	ID             string
	UserID         ulid.ULID
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// NewSession creates a Session with a fresh unguessable identifier.
func NewSession(userID ulid.ULID, now time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code(CodeInternal).Errorf("user ID cannot be zero")
	}
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:             id,
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Touch bumps the activity timestamp, extending the idle window.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// ExpiresAt returns the instant the session becomes invalid absent further activity.
func (s *Session) ExpiresAt(idleTTL time.Duration) time.Time {
	return s.LastActivityAt.Add(idleTTL)
}

// IsExpiredAt reports whether the session would be expired at the given time.
func (s *Session) IsExpiredAt(now time.Time, idleTTL time.Duration) bool {
	return now.After(s.ExpiresAt(idleTTL))
}

// GenerateSessionID creates a secure random session identifier.
func GenerateSessionID() (string, error) {
	buf := make([]byte, SessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code(CodeInternal).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionIDBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSessionID computes the SHA-256 hash of a session identifier.
// This is the at-rest form used for storage and lookups.
func HashSessionID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}

// VerifySessionID checks a plaintext identifier against a stored hash using
// a constant-time comparison.
func VerifySessionID(id, hash string) bool {
	if id == "" || hash == "" {
		return false
	}
	computed := HashSessionID(id)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SessionRepository manages session persistence. Implementations treat
// idle-expired sessions as absent: no read returns a session whose last
// activity is older than the configured idle TTL.
type SessionRepository interface {
	// FindByID retrieves a live session by its identifier.
	// Returns ErrNotFound for unknown and expired sessions alike.
	FindByID(ctx context.Context, id string) (*Session, error)

	// Save stores a new session.
	Save(ctx context.Context, session *Session) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAllForUser removes every session belonging to the user.
	DeleteAllForUser(ctx context.Context, userID ulid.ULID) error

	// UpdateActivity sets the session's last-activity timestamp.
	// Returns ErrNotFound if the session does not exist or has expired.
	UpdateActivity(ctx context.Context, id string, at time.Time) error

	// DeleteExpired removes all idle-expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
