// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// Password policy defaults.
const (
	DefaultPasswordMinLength = 8
	DefaultPasswordMaxLength = 128
)

// PasswordPolicy describes the strength rules applied at registration and
// password change. Zero-value lengths fall back to the defaults.
type PasswordPolicy struct {
	MinLength    int
	MaxLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPasswordPolicy returns the policy applied when none is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    DefaultPasswordMinLength,
		MaxLength:    DefaultPasswordMaxLength,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

func (p PasswordPolicy) effective() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultPasswordMinLength
	}
	if p.MaxLength <= 0 {
		p.MaxLength = DefaultPasswordMaxLength
	}
	return p
}

// Validate checks a candidate password against the policy. Failures are
// reported as a validation error keyed on the password field.
func (p PasswordPolicy) Validate(password string) error {
	eff := p.effective()

	if password == "" {
		return ErrValidation(map[string]string{"password": "password is required"})
	}
	if len(password) < eff.MinLength {
		return ErrValidation(map[string]string{
			"password": fmt.Sprintf("password must be at least %d characters", eff.MinLength),
		})
	}
	if len(password) > eff.MaxLength {
		return ErrValidation(map[string]string{
			"password": fmt.Sprintf("password must be at most %d characters", eff.MaxLength),
		})
	}

	var missing []string
	if eff.RequireUpper && !strings.ContainsFunc(password, unicode.IsUpper) {
		missing = append(missing, "an uppercase letter")
	}
	if eff.RequireLower && !strings.ContainsFunc(password, unicode.IsLower) {
		missing = append(missing, "a lowercase letter")
	}
	if eff.RequireDigit && !strings.ContainsFunc(password, unicode.IsDigit) {
		missing = append(missing, "a digit")
	}
	if len(missing) > 0 {
		return ErrValidation(map[string]string{
			"password": "password must contain " + strings.Join(missing, ", "),
		})
	}

	return nil
}
