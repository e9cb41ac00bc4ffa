package users

import (
	"crypto/subtle"
	"encoding/base64"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashPassword derives a one-way hash of the password salted with the user's
// ID. Tying the salt to the user means identical passwords on different
// accounts never produce the same hash, and a hash cannot be replayed
// against another account.
func HashPassword(password string, userID uuid.UUID) string {
	key := argon2.IDKey([]byte(password), userID[:], argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.RawStdEncoding.EncodeToString(key)
}

// CheckPasswordHash reports whether password hashes to hash for the given
// user. The comparison is constant time.
func CheckPasswordHash(password string, userID uuid.UUID, hash string) bool {
	computed := HashPassword(password, userID)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
