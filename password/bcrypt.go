package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest work factor NewBcrypt accepts.
	MinBcryptCost = 10
	// DefaultBcryptCost is used when no cost is configured.
	DefaultBcryptCost = 12
)

// Bcrypt hashes passwords with bcrypt at a fixed cost.
type Bcrypt struct {
	opts Options
}

var _ Hasher = (*Bcrypt)(nil)

// NewBcrypt rejects costs below MinBcryptCost or above bcrypt.MaxCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if err := checkBcryptCost(cost); err != nil {
		return nil, err
	}
	opts, _ := Options{Algorithm: AlgorithmBcrypt, BcryptCost: cost}.normalized()
	return &Bcrypt{opts: opts}, nil
}

func checkBcryptCost(cost int) error {
	if cost < MinBcryptCost {
		return fmt.Errorf("bcrypt cost must be >= %d", MinBcryptCost)
	}
	if cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be <= %d", bcrypt.MaxCost)
	}
	return nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.opts.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	return verify(password, encodedHash)
}

// NeedsUpgrade reports whether encodedHash is argon2id or used a lower cost.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	return needsUpgrade(b.opts, encodedHash)
}

func verifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
}
