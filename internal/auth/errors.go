// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes for authentication failures.
const (
	CodeValidation   = "AUTH_VALIDATION_FAILED"
	CodeConflict     = "AUTH_CONFLICT"
	CodeUnauthorized = "AUTH_UNAUTHORIZED"
	CodeRateLimited  = "AUTH_RATE_LIMITED"
	CodeInternal     = "AUTH_INTERNAL"
)

// genericCredentialsMessage is the single message returned for every
// credential failure. Unknown emails, wrong passwords, and locked accounts
// all read the same to the caller.
const genericCredentialsMessage = "invalid email or password"

// ErrValidation creates an error carrying per-field validation messages.
func ErrValidation(fields map[string]string) error {
	return oops.Code(CodeValidation).
		With("fields", fields).
		Errorf("validation failed")
}

// ErrConflict creates an error for a uniqueness conflict on the given field.
func ErrConflict(field string) error {
	return oops.Code(CodeConflict).
		With("field", field).
		Errorf("%s is already in use", field)
}

// ErrUnauthorized creates the generic credential-failure error. The message
// never varies, so callers cannot tell unknown emails, wrong passwords, and
// locked accounts apart.
func ErrUnauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf("%s", genericCredentialsMessage)
}

// ErrSessionUnauthorized creates the generic session-failure error. Unknown,
// expired, and orphaned sessions all read the same.
func ErrSessionUnauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf("invalid or expired session")
}

// ErrRateLimited creates an error for a rate-limited request. retryAfter is
// rounded up to whole seconds so a caller that waits the advertised delay is
// guaranteed to clear the limit.
func ErrRateLimited(retryAfter time.Duration) error {
	secs := int64((retryAfter + time.Second - 1) / time.Second)
	return oops.Code(CodeRateLimited).
		With("retry_after_seconds", secs).
		Errorf("too many attempts, retry in %d seconds", secs)
}

// ErrorCode returns the code attached to err, or CodeInternal when the error
// carries none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() == "" {
		return CodeInternal
	}
	return oopsErr.Code()
}

// FieldErrors returns the per-field messages attached to a CodeValidation
// error, or nil for any other error.
func FieldErrors(err error) map[string]string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() != CodeValidation {
		return nil
	}
	fields, _ := oopsErr.Context()["fields"].(map[string]string)
	return fields
}

// RetryAfterSeconds returns the retry delay attached to a CodeRateLimited
// error. The second return is false for any other error.
func RetryAfterSeconds(err error) (int64, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() != CodeRateLimited {
		return 0, false
	}
	secs, secsOK := oopsErr.Context()["retry_after_seconds"].(int64)
	return secs, secsOK
}
