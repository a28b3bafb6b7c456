package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	resetCodeMin = 100000
	resetCodeMax = 999999
)

// NewResetCode returns a uniformly random six digit code in [100000, 999999].
func NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+resetCodeMin, 10), nil
}

// HashCode returns the hex SHA-256 of a one-time code. Only this value is persisted.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// ValidResetCode reports whether code has the shape NewResetCode produces.
func ValidResetCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	n, err := strconv.Atoi(code)
	return err == nil && n >= resetCodeMin && n <= resetCodeMax
}
