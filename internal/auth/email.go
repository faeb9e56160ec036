// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"net/mail"
	"strings"
)

// MaxEmailLength caps the accepted address length in bytes (RFC 5321 path limit).
const MaxEmailLength = 254

// EmailAddress is an immutable email value. The raw form preserves the
// address as provided; the normalized form (trimmed, lowercased) is the
// canonical identity used for lookups and uniqueness. Two addresses are
// equal when their normalized forms match.
type EmailAddress struct {
	raw        string
	normalized string
}

// ParseEmailAddress validates and normalizes an email address.
// Display-name forms ("Ada <ada@example.com>") are rejected.
func ParseEmailAddress(raw string) (EmailAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EmailAddress{}, ErrValidation(map[string]string{"email": "email is required"})
	}
	if len(trimmed) > MaxEmailLength {
		return EmailAddress{}, ErrValidation(map[string]string{"email": "email is too long"})
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return EmailAddress{}, ErrValidation(map[string]string{"email": "email is not a valid address"})
	}
	return EmailAddress{raw: trimmed, normalized: strings.ToLower(trimmed)}, nil
}

// MustEmailAddress parses an address and panics on failure. For fixtures and
// startup code with known-good literals.
func MustEmailAddress(raw string) EmailAddress {
	addr, err := ParseEmailAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// Raw returns the address as originally provided, minus surrounding whitespace.
func (e EmailAddress) Raw() string { return e.raw }

// Normalized returns the canonical lowercase form used for lookups.
func (e EmailAddress) Normalized() string { return e.normalized }

// IsZero reports whether e is the zero EmailAddress.
func (e EmailAddress) IsZero() bool { return e.normalized == "" }

// Equal reports whether two addresses share a normalized form.
func (e EmailAddress) Equal(other EmailAddress) bool { return e.normalized == other.normalized }

// String returns the raw form.
func (e EmailAddress) String() string { return e.raw }
