package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// SecretSize is the number of random bytes behind every refresh secret.
const SecretSize = 48

// ErrMalformedSecret reports a secret that cannot have been produced by NewSecret.
var ErrMalformedSecret = errors.New("malformed refresh secret")

// NewSecret returns a fresh secret and its lookup hash.
func NewSecret() (secret string, hash string, err error) {
	var raw [SecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw[:])
	return secret, Hash(secret), nil
}

// Hash returns the hex SHA-256 of secret. It is deterministic and never fails.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Validate checks that secret decodes to exactly SecretSize bytes.
func Validate(secret string) error {
	if len(secret) != base64.RawURLEncoding.EncodedLen(SecretSize) {
		return ErrMalformedSecret
	}
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(raw) != SecretSize {
		return ErrMalformedSecret
	}
	return nil
}
