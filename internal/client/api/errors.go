package api

import "errors"

var (
	// ErrUnavailable marks connection-level failures: DNS, refused
	// connections, timeouts. Callers must treat it as inconclusive, never
	// as an authentication rejection.
	ErrUnavailable = errors.New("server unavailable")

	// ErrUnauthorized is returned by Validate when the backend explicitly
	// rejects the presented token.
	ErrUnauthorized = errors.New("unauthorized")
)
