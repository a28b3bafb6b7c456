package internal

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail is returned by NormalizeEmail for unusable addresses.
var ErrInvalidEmail = errors.New("invalid email address")

const maxEmailLength = 254

// NormalizeEmail trims and lower-cases email and checks it is a bare address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || len(normalized) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// EmailLocalPart returns the part of email before '@'.
func EmailLocalPart(email string) string {
	if i := strings.LastIndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
