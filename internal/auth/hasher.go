// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id cost parameters, following the OWASP password storage
// guidance. argon2Memory is in KiB.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// ErrEmptyPassword rejects hashing the empty string.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash derives a hash from the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the stored hash.
	// A malformed hash is an error, not a mismatch.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether the stored hash predates the current
	// algorithm and should be re-hashed on the next successful login.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// legacy bcrypt hashes so imported accounts keep working until their hashes
// are upgraded on login.
type Argon2idHasher struct{}

// NewArgon2idHasher returns the production PasswordHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password with a fresh random
// salt, encoded as a PHC string.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodePHC(salt, digest), nil
}

// Verify checks the password against a stored hash. Bcrypt hashes take
// the legacy path; everything else must parse as an argon2id PHC string.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}

	params, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), params.salt, params.time, params.memory, params.threads, uint32(len(params.digest)))
	return subtle.ConstantTimeCompare(computed, params.digest) == 1, nil
}

// NeedsUpgrade reports whether the hash is anything other than argon2id,
// which in practice means a legacy bcrypt hash.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

// encodePHC renders a salt and digest in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>.
func encodePHC(salt, digest []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest))
}

// phcParams are the argon2 inputs recovered from a stored hash.
// Verification honors the stored parameters rather than the current
// constants, so hashes minted under an older profile keep verifying.
type phcParams struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	digest  []byte
}

// parsePHC decodes an argon2id PHC string.
func parsePHC(encoded string) (phcParams, error) {
	var params phcParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return params, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return params, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &threads); err != nil {
		return params, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// argon2.IDKey takes parallelism as uint8; reject values that would
	// silently truncate.
	if threads > 255 {
		return params, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d exceeds uint8 max", threads)
	}
	params.threads = uint8(threads)

	var err error
	if params.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return params, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if params.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return params, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(params.digest) == 0 || len(params.digest) > 1<<30 {
		return params, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(params.digest))
	}

	return params, nil
}

// verifyBcrypt checks the password against a legacy bcrypt hash.
func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

// isBcryptHash reports whether the hash carries a bcrypt version prefix.
func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}
