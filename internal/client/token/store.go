// Package token implements the client credential store: one authoritative
// bearer token tracked across the per-run scope and, when "remember me" was
// requested, the durable scope.
//
// Failure semantics: storage reads and writes never propagate to callers.
// A parse or storage failure is logged and treated as "no token".
package token

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ghosttalk/ghosttalk-client/internal/client/storage"
	"github.com/ghosttalk/ghosttalk-client/internal/logging"
)

const (
	// sessionTTL bounds tokens stored without "remember me".
	sessionTTL = 24 * time.Hour
	// rememberTTL bounds tokens stored with "remember me".
	rememberTTL = 7 * 24 * time.Hour
)

// Store holds the current bearer credential. At most one token is
// authoritative at a time; the in-memory copy is a hot cache over the
// session scope, and the durable scope is consulted only when the
// "remember me" flag was persisted there.
type Store struct {
	session storage.Scope
	durable storage.Scope
	log     logging.Logger

	// now is a test seam for expiry computations.
	now func() time.Time

	mu        sync.Mutex
	cached    string
	cachedExp time.Time
}

func NewStore(session, durable storage.Scope, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{
		session: session,
		durable: durable,
		log:     log,
		now:     time.Now,
	}
}

// Set stores tok as the current credential. The expiry is computed locally
// (1 day, or 7 days with rememberMe) and clamped by the token's own exp
// claim when it happens to be a parseable JWT. The session scope is always
// written; the durable scope only when rememberMe is set. Both verification
// flags are primed to "true" so a fresh login is not bounced straight into
// the verification gate.
func (s *Store) Set(ctx context.Context, tok string, rememberMe bool) {
	ttl := sessionTTL
	if rememberMe {
		ttl = rememberTTL
	}
	exp := clampExpiry(tok, s.now().Add(ttl))

	s.writeScope(ctx, s.session, tok, exp)

	if rememberMe {
		s.writeScope(ctx, s.durable, tok, exp)
		s.put(ctx, s.durable, storage.KeyRememberMe, "true")
	} else {
		s.del(ctx, s.durable, storage.KeyRememberMe)
	}

	s.mu.Lock()
	s.cached = tok
	s.cachedExp = exp
	s.mu.Unlock()
}

// Get returns the current token, or "" when no unexpired token exists in any
// scope. Lookup order: in-memory cache, session scope, then the durable
// scope if it carries the "remember me" flag. A valid hit from storage is
// mirrored into the in-memory cache. When nothing valid is found, every
// scope is cleared so stale copies cannot resurface.
func (s *Store) Get(ctx context.Context) string {
	s.mu.Lock()
	if s.cached != "" && s.now().Before(s.cachedExp) {
		tok := s.cached
		s.mu.Unlock()
		return tok
	}
	s.mu.Unlock()

	if tok, exp, ok := s.readScope(ctx, s.session); ok {
		s.mu.Lock()
		s.cached, s.cachedExp = tok, exp
		s.mu.Unlock()
		return tok
	}

	if s.get(ctx, s.durable, storage.KeyRememberMe) == "true" {
		if tok, exp, ok := s.readScope(ctx, s.durable); ok {
			s.mu.Lock()
			s.cached, s.cachedExp = tok, exp
			s.mu.Unlock()
			return tok
		}
	}

	s.Clear(ctx)
	return ""
}

// Clear wipes the in-memory cache and removes the token, its expiry, and
// the verification flags from both scopes. Idempotent.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cached = ""
	s.cachedExp = time.Time{}
	s.mu.Unlock()

	for _, sc := range []storage.Scope{s.session, s.durable} {
		s.del(ctx, sc, storage.KeyAuthToken)
		s.del(ctx, sc, storage.KeyAuthTokenExpires)
		s.del(ctx, sc, storage.KeySessionVerified)
		s.del(ctx, sc, storage.KeySecurityTokenVerified)
	}
}

// ClearRememberMe drops the durable "remember me" flag so the durable scope
// is no longer consulted on Get. Called on logout.
func (s *Store) ClearRememberMe(ctx context.Context) {
	s.del(ctx, s.durable, storage.KeyRememberMe)
}

// RememberMe reports whether the durable "remember me" flag is set.
func (s *Store) RememberMe(ctx context.Context) bool {
	return s.get(ctx, s.durable, storage.KeyRememberMe) == "true"
}

// SetVerified records the session-verification flags in both scopes.
func (s *Store) SetVerified(ctx context.Context, sessionVerified, securityTokenVerified bool) {
	for _, sc := range []storage.Scope{s.session, s.durable} {
		s.put(ctx, sc, storage.KeySessionVerified, boolString(sessionVerified))
		s.put(ctx, sc, storage.KeySecurityTokenVerified, boolString(securityTokenVerified))
	}
}

// SessionVerified reports the persisted sessionVerified flag, preferring the
// session scope and falling back to the durable one.
func (s *Store) SessionVerified(ctx context.Context) bool {
	if v := s.get(ctx, s.session, storage.KeySessionVerified); v != "" {
		return v == "true"
	}
	return s.get(ctx, s.durable, storage.KeySessionVerified) == "true"
}

// SetSessionDetails persists the opaque session-details blob in both scopes.
func (s *Store) SetSessionDetails(ctx context.Context, details string) {
	for _, sc := range []storage.Scope{s.session, s.durable} {
		s.put(ctx, sc, storage.KeySessionDetails, details)
	}
}

// SessionDetails returns the persisted session-details blob, if any.
func (s *Store) SessionDetails(ctx context.Context) string {
	if v := s.get(ctx, s.session, storage.KeySessionDetails); v != "" {
		return v
	}
	return s.get(ctx, s.durable, storage.KeySessionDetails)
}

func (s *Store) writeScope(ctx context.Context, sc storage.Scope, tok string, exp time.Time) {
	s.put(ctx, sc, storage.KeyAuthToken, tok)
	s.put(ctx, sc, storage.KeyAuthTokenExpires, exp.Format(time.RFC3339))
	s.put(ctx, sc, storage.KeySessionVerified, "true")
	s.put(ctx, sc, storage.KeySecurityTokenVerified, "true")
}

// readScope returns the scope's token and expiry when present and unexpired.
func (s *Store) readScope(ctx context.Context, sc storage.Scope) (string, time.Time, bool) {
	tok := s.get(ctx, sc, storage.KeyAuthToken)
	if tok == "" {
		return "", time.Time{}, false
	}
	raw := s.get(ctx, sc, storage.KeyAuthTokenExpires)
	exp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.log.Warn(ctx, "unparseable token expiry, treating as absent", "value", raw)
		return "", time.Time{}, false
	}
	if !s.now().Before(exp) {
		return "", time.Time{}, false
	}
	return tok, exp, true
}

func (s *Store) get(ctx context.Context, sc storage.Scope, key string) string {
	v, err := sc.Get(ctx, key)
	if err != nil {
		s.log.Warn(ctx, "storage read failed", "key", key, "err", err)
		return ""
	}
	return v
}

func (s *Store) put(ctx context.Context, sc storage.Scope, key, value string) {
	if err := sc.Set(ctx, key, value); err != nil {
		s.log.Warn(ctx, "storage write failed", "key", key, "err", err)
	}
}

func (s *Store) del(ctx context.Context, sc storage.Scope, key string) {
	if err := sc.Delete(ctx, key); err != nil {
		s.log.Warn(ctx, "storage delete failed", "key", key, "err", err)
	}
}

// clampExpiry caps the locally computed expiry with the token's own exp
// claim when the opaque token turns out to be a JWT. Signature verification
// is the server's business; only the timestamp is of interest here.
func clampExpiry(tok string, exp time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return exp
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return exp
	}
	if t.Time.Before(exp) {
		return t.Time
	}
	return exp
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
