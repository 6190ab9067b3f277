// Package storage implements the two client-side persistence scopes:
// a per-run scope that lives only for the current process (the analogue of
// tab/session storage) and a durable scope that survives restarts (the
// analogue of device storage). Both expose the same key-value Scope
// interface so callers never care which one they are writing to.
package storage

import "context"

// Well-known keys shared by the session and durable scopes.
const (
	KeyAuthToken             = "authToken"
	KeyAuthTokenExpires      = "authTokenExpires"
	KeyRememberMe            = "rememberMe"
	KeySessionVerified       = "sessionVerified"
	KeySecurityTokenVerified = "securityTokenVerified"
	KeySessionDetails        = "sessionDetails"
	KeyUserData              = "userData"
	KeyHasSeenOnboarding     = "hasSeenOnboarding"
	KeyForceOnboarding       = "forceOnboarding"
	KeyClientID              = "clientId"
)

// Scope is one key-value persistence scope.
//
// Get returns ("", nil) for absent keys; callers treat read/write errors as
// "value not present" and must not let them propagate to UI flows.
type Scope interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
