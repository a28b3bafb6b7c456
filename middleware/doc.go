// Package middleware adapts authcore access token validation to net/http.
//
//   - [RequireAccess] verifies the bearer token only. No store call.
//   - [RequireStrict] also requires a live session for the user.
//   - [Guard] takes any [Validator] plus extra checks.
//
// Guards answer 401 on a missing or bad token and put the validated
// *authcore.Identity in the request context; read it with
// [IdentityFromContext]. The client address is attached with
// authcore.WithClientIP so audit events carry it.
package middleware
