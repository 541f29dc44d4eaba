// Package credential provides the bcrypt-backed implementation of the
// password hashing capability.
package credential

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given iteration cost
// (SALT_ROUNDS in the configuration).
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("generating encoded password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(passwordBytes), nil
}

// Verify never returns an error; any malformed digest simply fails the check.
func (h *BcryptHasher) Verify(plaintext string, digest string) bool {
	raw, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(raw, []byte(plaintext)) == nil
}
