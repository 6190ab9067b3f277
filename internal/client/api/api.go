// Package api implements the GhostTalk REST client.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) for the auth
//     endpoints the session core consumes: login, register, logout, token
//     verification, silent validation, session/magic-link/2FA verification.
//  2. A concrete JSON-over-HTTPS implementation (see HTTPClient) that
//     attaches the bearer token, normalizes non-2xx responses into tagged
//     results, and maps connection-level failures to sentinel errors.
//
// # Error Handling
//
// Every response is a discriminated union on Success. A non-2xx status never
// surfaces as an error: it becomes {Success:false, HTTPStatus, Message}.
// Errors are reserved for the transport itself; match them with errors.Is
// against ErrUnavailable.
package api

import (
	"context"
	"encoding/json"
)

// User is the backend's identity payload, cached client-side for
// optimistic paint.
type User struct {
	ID                string          `json:"id"`
	DisplayName       string          `json:"displayName"`
	Email             string          `json:"email"`
	ProTier           string          `json:"proTier"` // "free" | "monthly" | "yearly"
	VerificationFlags map[string]bool `json:"verificationFlags,omitempty"`
}

// RegisterRequest carries the profile fields collected at sign-up.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Gender   string `json:"gender,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// Status is the tagged-result header embedded in every response type.
type Status struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	HTTPStatus int    `json:"-"`
}

// AuthResult is the response shape of the token-issuing endpoints
// (login, magic-link, 2FA) and of token verification.
type AuthResult struct {
	Status
	Token             string `json:"token,omitempty"`
	User              *User  `json:"user,omitempty"`
	NeedsVerification bool   `json:"needsVerification,omitempty"`
}

// RegisterResult is the response of /auth/register. Registration never
// issues a token; the user logs in afterwards.
type RegisterResult struct {
	Status
	User *User `json:"user,omitempty"`
}

// SessionResult is the response of /auth/verify-session.
type SessionResult struct {
	Status
	SessionDetails json.RawMessage `json:"sessionDetails,omitempty"`
}

// Client is the REST surface the session core depends on.
//
// Methods return a non-nil error only for transport-level failures
// (ErrUnavailable) or context cancellation; backend rejections come back as
// results with Success == false.
type Client interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context) (*AuthResult, error)
	Validate(ctx context.Context) error
	VerifySession(ctx context.Context, token string) (*SessionResult, error)
	VerifyMagicLink(ctx context.Context, token string) (*AuthResult, error)
	Verify2FA(ctx context.Context, userID, code string) (*AuthResult, error)
}
