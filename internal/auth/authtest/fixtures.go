// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides test fixtures for the auth package: value
// builders for users and sessions, and in-memory repository fakes.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// ValidHash is a well-formed argon2id hash for fixtures that never have a
// password verified against them.
const ValidHash = "$argon2id$v=19$m=65536,t=1,p=4$dGVzdHNhbHQ$dGVzdGhhc2g" //nolint:gosec // G101: not a credential

// DefaultEmail is the address UserBuilder starts with.
const DefaultEmail = "user@example.com"

// UserBuilder assembles auth.User values for tests.
type UserBuilder struct {
	user auth.User
}

// NewUser starts a builder for a user with a fresh ID, DefaultEmail, and
// ValidHash as the stored password hash.
func NewUser() *UserBuilder {
	now := time.Now().UTC()
	return &UserBuilder{user: auth.User{
		ID:                ulid.Make(),
		Email:             auth.MustEmailAddress(DefaultEmail),
		PasswordHash:      ValidHash,
		CreatedAt:         now,
		UpdatedAt:         now,
		PasswordChangedAt: now,
	}}
}

// WithEmail sets the email address. Panics on an invalid address.
func (b *UserBuilder) WithEmail(raw string) *UserBuilder {
	b.user.Email = auth.MustEmailAddress(raw)
	return b
}

// WithPasswordHash sets the stored password hash.
func (b *UserBuilder) WithPasswordHash(hash string) *UserBuilder {
	b.user.PasswordHash = hash
	return b
}

// WithFailedAttempts sets the consecutive failed login counter.
func (b *UserBuilder) WithFailedAttempts(n int) *UserBuilder {
	b.user.FailedLoginAttempts = n
	return b
}

// LockedUntil locks the account until the given time.
func (b *UserBuilder) LockedUntil(until time.Time) *UserBuilder {
	b.user.LockedUntil = &until
	return b
}

// At rebases the creation, update, and password-change timestamps to now.
func (b *UserBuilder) At(now time.Time) *UserBuilder {
	b.user.CreatedAt = now
	b.user.UpdatedAt = now
	b.user.PasswordChangedAt = now
	return b
}

// Build returns the user. Each call returns an independent copy.
func (b *UserBuilder) Build() *auth.User {
	u := b.user
	return &u
}

// SessionBuilder assembles auth.Session values for tests.
type SessionBuilder struct {
	session auth.Session
}

// NewSession starts a builder for a session belonging to userID with a
// freshly generated identifier.
func NewSession(userID ulid.ULID) *SessionBuilder {
	id, err := auth.GenerateSessionID()
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC()
	return &SessionBuilder{session: auth.Session{
		ID:             id,
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}}
}

// At sets both the creation and last-activity times.
func (b *SessionBuilder) At(now time.Time) *SessionBuilder {
	b.session.CreatedAt = now
	b.session.LastActivityAt = now
	return b
}

// LastActiveAt sets the last-activity time.
func (b *SessionBuilder) LastActiveAt(at time.Time) *SessionBuilder {
	b.session.LastActivityAt = at
	return b
}

// Build returns the session. Each call returns an independent copy.
func (b *SessionBuilder) Build() *auth.Session {
	s := b.session
	return &s
}

// MemoryUserRepository is an auth.UserRepository backed by a map. Lookups
// and saves copy the stored value, so a user mutated by the caller changes
// nothing until it is saved back.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User
}

// NewMemoryUserRepository creates an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[ulid.ULID]auth.User)}
}

// FindByEmail retrieves a user by normalized email.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, normalized string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email.Normalized() == normalized {
			out := u
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

// FindByID retrieves a user by ID.
func (r *MemoryUserRepository) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := u
	return &out, nil
}

// Save stores the user, replacing any existing entry with the same ID.
func (r *MemoryUserRepository) Save(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

// EmailExists reports whether any user has the normalized email.
func (r *MemoryUserRepository) EmailExists(_ context.Context, normalized string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email.Normalized() == normalized {
			return true, nil
		}
	}
	return false, nil
}

// MemorySessionRepository is an auth.SessionRepository backed by a map.
// Sessions idle past the TTL read as absent but linger until DeleteExpired
// removes them, matching the Postgres implementation.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]auth.Session
	idleTTL  time.Duration
	clock    func() time.Time
}

// NewMemorySessionRepository creates an in-memory session repository. A
// non-positive idleTTL selects auth.DefaultSessionIdleTTL.
func NewMemorySessionRepository(idleTTL time.Duration) *MemorySessionRepository {
	return NewMemorySessionRepositoryWithClock(idleTTL, nil)
}

// NewMemorySessionRepositoryWithClock creates an in-memory session
// repository on an explicit time source. A nil clock selects time.Now.
func NewMemorySessionRepositoryWithClock(idleTTL time.Duration, clock func() time.Time) *MemorySessionRepository {
	if idleTTL <= 0 {
		idleTTL = auth.DefaultSessionIdleTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemorySessionRepository{
		sessions: make(map[string]auth.Session),
		idleTTL:  idleTTL,
		clock:    clock,
	}
}

func (r *MemorySessionRepository) cutoff() time.Time {
	return r.clock().Add(-r.idleTTL)
}

// FindByID retrieves a live session.
func (r *MemorySessionRepository) FindByID(_ context.Context, id string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.LastActivityAt.Before(r.cutoff()) {
		return nil, auth.ErrNotFound
	}
	out := s
	return &out, nil
}

// Save stores a session.
func (r *MemorySessionRepository) Save(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteAllForUser removes every session belonging to the user.
func (r *MemorySessionRepository) DeleteAllForUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// UpdateActivity sets the last-activity time of a live session.
func (r *MemorySessionRepository) UpdateActivity(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.LastActivityAt.Before(r.cutoff()) {
		return auth.ErrNotFound
	}
	s.LastActivityAt = at
	r.sessions[id] = s
	return nil
}

// DeleteExpired removes idle-expired sessions and returns the count.
func (r *MemorySessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.cutoff()
	var n int64
	for id, s := range r.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions, expired ones included.
func (r *MemorySessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Verify interfaces are satisfied.
var (
	_ auth.UserRepository    = (*MemoryUserRepository)(nil)
	_ auth.SessionRepository = (*MemorySessionRepository)(nil)
)
