package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 32
	hashIterations = 100000
	hashKeyLength  = 32
)

// Hasher derives salted, peppered PBKDF2 hashes for passwords and usernames.
// The pepper is an application-level secret; each password gets a random
// per-user salt, while usernames share a fixed salt so the stored hash stays
// usable as a lookup key.
type Hasher struct {
	pepper       string
	usernameSalt string
}

// NewHasher creates a Hasher with the application pepper and shared username salt.
func NewHasher(pepper, usernameSalt string) *Hasher {
	return &Hasher{pepper: pepper, usernameSalt: usernameSalt}
}

// GenerateSalt returns a new random base64-encoded salt
func (h *Hasher) GenerateSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash derives the PBKDF2 hash of data with the given base64 salt and the
// application pepper, returning it base64-encoded.
func (h *Hasher) Hash(data, salt string) (string, error) {
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt encoding: %w", err)
	}
	key := pbkdf2.Key([]byte(data+h.pepper), saltBytes, hashIterations, hashKeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// Verify reports whether data hashes to hash under the given salt
func (h *Hasher) Verify(data, salt, hash string) bool {
	computed, err := h.Hash(data, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// HashUsername hashes a username with the shared salt so it can be looked up
func (h *Hasher) HashUsername(username string) (string, error) {
	salt := base64.StdEncoding.EncodeToString([]byte(h.usernameSalt))
	return h.Hash(username, salt)
}

// VerifyUsername reports whether username hashes to hash
func (h *Hasher) VerifyUsername(username, hash string) bool {
	computed, err := h.HashUsername(username)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
