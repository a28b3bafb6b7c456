package authcore

import "time"

// UserView is the part of a user that may leave the engine. It never carries
// the credential hash.
type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

// TokenPair is an access token plus the refresh secret that replaces it.
// RefreshToken is opaque; its only use is as the argument to Engine.Refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	TokenPair
	User UserView `json:"user"`
}

// Identity is the verified content of an access token.
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionInfo describes one live refresh token without exposing it.
type SessionInfo struct {
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
