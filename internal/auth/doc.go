// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the Gatehouse authentication core.
//
// # Domain Types
//
// User and Session values come from their constructors:
//   - NewUser - creates a User with a validated email and password hash
//   - NewSession - creates a Session with a fresh unguessable identifier
//
// Constructing the structs directly skips that validation, so repositories
// and the Service only ever see values the constructors produced.
//
// # Service
//
// Service coordinates the authentication flows: Register, Login, Logout,
// CurrentUser, and ChangePassword. It is created with NewService, which
// validates its dependencies.
//
// Time-dependent behavior (lockout expiry, session activity) flows from a
// clock injected into Service; entity transitions take explicit timestamps
// so state changes stay deterministic under test.
package auth
