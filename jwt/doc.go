// Package jwt issues and verifies the short-lived signed access tokens handed out
// at login, registration and refresh.
//
// Tokens carry the user id, email and nickname plus iat/exp. Verification is
// stateless: revocation applies to refresh tokens only, so an access token stays
// valid until it expires.
package jwt
