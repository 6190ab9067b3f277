// Package session owns the client's view of "who is logged in".
//
// # Overview
//
// The Controller is the single source of truth for the current identity and
// its lifecycle: bootstrap with optimistic paint, login/registration/logout,
// magic-link and 2FA completion, and the email-verification state that gates
// protected routes. It coordinates the token store, the REST client, and the
// realtime transport so that tokens are persisted before the transport dials
// and local state is torn down even when the backend is unreachable.
//
// # Concurrency
//
// Operations interleave: a background revalidation started by Bootstrap may
// resolve after a newer Login or Logout. Every asynchronous completion is
// therefore guarded by a monotonically increasing epoch; a completion whose
// epoch is stale commits nothing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ghosttalk/ghosttalk-client/internal/client/api"
	"github.com/ghosttalk/ghosttalk-client/internal/client/storage"
	"github.com/ghosttalk/ghosttalk-client/internal/client/token"
	"github.com/ghosttalk/ghosttalk-client/internal/logging"
)

// Status is the controller's resolution state. It starts at StatusLoading
// and settles on one of the other two after the first bootstrap.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

const defaultRevalidateTimeout = 3 * time.Second

// Transport is the slice of the realtime transport the controller drives.
type Transport interface {
	Connect(ctx context.Context, tok string) error
	EnsureConnected(ctx context.Context, tok string) bool
	Disconnect()
}

// ConnectivityProbe reports whether the device currently has network
// connectivity. Used to skip the background revalidation when offline.
type ConnectivityProbe func(ctx context.Context) bool

// LoginResult is the tagged outcome of a token-issuing flow. Exactly one of
// Success/NeedsVerification is set on a non-error outcome; Message carries
// the user-facing failure text otherwise.
type LoginResult struct {
	Success           bool
	NeedsVerification bool
	Message           string
}

// OpResult is the tagged outcome of flows that do not issue a token.
type OpResult struct {
	Success bool
	Message string
}

// Controller owns the current user identity. Construct with NewController;
// the zero value is not usable.
type Controller struct {
	api       api.Client
	tokens    *token.Store
	transport Transport
	session   storage.Scope
	durable   storage.Scope
	log       logging.Logger

	online            ConnectivityProbe
	revalidateTimeout time.Duration

	mu     sync.Mutex
	status Status
	user   *api.User
	epoch  uint64
}

func NewController(client api.Client, tokens *token.Store, rt Transport,
	session, durable storage.Scope, log logging.Logger) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	return &Controller{
		api:               client,
		tokens:            tokens,
		transport:         rt,
		session:           session,
		durable:           durable,
		log:               log,
		online:            func(context.Context) bool { return true },
		revalidateTimeout: defaultRevalidateTimeout,
		status:            StatusLoading,
	}
}

// SetConnectivityProbe replaces the default always-online probe.
func (c *Controller) SetConnectivityProbe(p ConnectivityProbe) {
	if p != nil {
		c.online = p
	}
}

// SetRevalidateTimeout overrides the budget for background revalidation.
func (c *Controller) SetRevalidateTimeout(d time.Duration) {
	if d > 0 {
		c.revalidateTimeout = d
	}
}

// Status returns the current resolution state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// User returns the current identity, or nil when logged out.
func (c *Controller) User() *api.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// SessionVerified reports the persisted verification flag.
func (c *Controller) SessionVerified(ctx context.Context) bool {
	return c.tokens.SessionVerified(ctx)
}

// Gate resolves the render decision for protected routes from the current
// status and verification flag.
func (c *Controller) Gate(ctx context.Context) GateDecision {
	st := c.Status()
	return Decide(st == StatusLoading, st == StatusAuthenticated, c.SessionVerified(ctx))
}

// Bootstrap resolves the session at startup.
//
// With a cached identity, a verified-session flag, and a live token, the
// cached identity is painted immediately so the UI never flickers through a
// login screen; a best-effort revalidation then runs in the background with
// a short timeout, and only an explicit backend rejection demotes the
// session. With a token but no usable cache the verification happens in the
// foreground (deliberately without the background timeout). With neither,
// the session resolves to unauthenticated.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.mu.Lock()
	c.status = StatusLoading
	c.epoch++
	ep := c.epoch
	c.mu.Unlock()

	tok := c.tokens.Get(ctx)
	cached := c.loadCachedUser(ctx)
	verified := c.tokens.SessionVerified(ctx)

	switch {
	case tok != "" && cached != nil && verified:
		// optimistic paint before any network call
		c.commit(ep, func() {
			c.status = StatusAuthenticated
			c.user = cached
		})
		if c.online(ctx) {
			go c.revalidate(ep, tok)
		}
	case tok != "":
		c.foregroundVerify(ctx, ep, tok)
	default:
		c.commit(ep, func() {
			c.status = StatusUnauthenticated
			c.user = nil
		})
	}
}

// revalidate is the background half of Bootstrap. Network-level failures
// (including the timeout) are inconclusive and leave state untouched; only
// an explicit rejection clears the credential.
func (c *Controller) revalidate(ep uint64, tok string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
	defer cancel()

	res, err := c.api.VerifyToken(ctx)
	if err != nil {
		c.log.Debug(ctx, "background revalidation inconclusive", "err", err)
		return
	}

	bg := context.Background()
	if !res.Success {
		c.commit(ep, func() {
			c.tokens.Clear(bg)
			c.status = StatusUnauthenticated
			c.user = nil
		})
		return
	}

	if res.User != nil {
		if c.commit(ep, func() { c.user = res.User }) {
			c.cacheUser(bg, res.User)
		}
	}
	if c.currentEpoch() == ep {
		c.transport.EnsureConnected(bg, tok)
	}
}

// foregroundVerify handles the cold start with a token but no cache. It has
// no explicit timeout: the user is looking at a loading screen and the
// request either resolves or fails outright.
func (c *Controller) foregroundVerify(ctx context.Context, ep uint64, tok string) {
	res, err := c.api.VerifyToken(ctx)
	if err != nil {
		// a pure network failure is not a rejection: keep the token for
		// the next attempt but render the login screen
		c.commit(ep, func() {
			c.status = StatusUnauthenticated
			c.user = nil
		})
		return
	}

	if !res.Success || res.User == nil {
		c.tokens.Clear(ctx)
		c.commit(ep, func() {
			c.status = StatusUnauthenticated
			c.user = nil
		})
		return
	}

	c.cacheUser(ctx, res.User)
	c.commit(ep, func() {
		c.status = StatusAuthenticated
		c.user = res.User
	})
	if c.currentEpoch() == ep {
		c.transport.EnsureConnected(ctx, tok)
	}
}

// Login authenticates with email and password. On success the token is
// persisted (durably iff rememberMe) before the realtime transport dials
// with it, the identity is cached, and the result is tagged Success. A
// backend asking for verification first comes back as NeedsVerification.
// Login never panics and never returns an error: every failure is mapped
// into the result's Message.
func (c *Controller) Login(ctx context.Context, email, password string, rememberMe bool) LoginResult {
	ep := c.bumpEpoch()

	res, err := c.api.Login(ctx, email, password)
	if err != nil {
		return LoginResult{Message: failureMessage(err)}
	}
	return c.completeAuth(ctx, ep, res, rememberMe)
}

// completeAuth finishes any token-issuing flow (login, magic link, 2FA).
func (c *Controller) completeAuth(ctx context.Context, ep uint64, res *api.AuthResult, rememberMe bool) LoginResult {
	if res.NeedsVerification {
		return LoginResult{NeedsVerification: true, Message: res.Message}
	}
	if !res.Success || res.Token == "" {
		return LoginResult{Message: messageOr(res.Message, "login failed")}
	}

	// the store write completes before the dial so a reconnect reading the
	// store never sees an absent token
	c.tokens.Set(ctx, res.Token, rememberMe)
	c.cacheUser(ctx, res.User)

	c.commit(ep, func() {
		c.status = StatusAuthenticated
		c.user = res.User
	})

	if err := c.transport.Connect(ctx, res.Token); err != nil {
		// realtime will self-heal via EnsureConnected on the next screen
		c.log.Warn(ctx, "realtime connect after login failed", "err", err)
	}
	return LoginResult{Success: true}
}

// Register creates an account. It does not log the user in.
func (c *Controller) Register(ctx context.Context, req api.RegisterRequest) OpResult {
	res, err := c.api.Register(ctx, req)
	if err != nil {
		return OpResult{Message: failureMessage(err)}
	}
	return OpResult{Success: res.Success, Message: res.Message}
}

// Logout tears the session down. The backend call is best-effort: local
// state is cleared and the transport disconnected unconditionally, so the
// client ends up logged out even when the network is gone. The transport is
// down before Logout returns, leaving no event handler to fire against a
// destroyed session.
func (c *Controller) Logout(ctx context.Context) {
	c.bumpEpoch()

	lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := c.api.Logout(lctx); err != nil {
		c.log.Debug(ctx, "backend logout failed, clearing locally anyway", "err", err)
	}
	cancel()

	c.tokens.Clear(ctx)
	c.tokens.ClearRememberMe(ctx)
	for _, sc := range []storage.Scope{c.session, c.durable} {
		if err := sc.Delete(ctx, storage.KeyUserData); err != nil {
			c.log.Warn(ctx, "failed to drop cached identity", "err", err)
		}
		_ = sc.Delete(ctx, storage.KeySessionDetails)
	}

	c.mu.Lock()
	c.status = StatusUnauthenticated
	c.user = nil
	c.mu.Unlock()

	c.transport.Disconnect()
}

// VerifySession completes the email-link verification round trip.
func (c *Controller) VerifySession(ctx context.Context, verificationToken string) OpResult {
	res, err := c.api.VerifySession(ctx, verificationToken)
	if err != nil {
		return OpResult{Message: failureMessage(err)}
	}
	c.HandleSessionVerification(ctx, res)
	return OpResult{Success: res.Success, Message: res.Message}
}

// HandleSessionVerification records a successful verification response:
// both flags are set in both scopes and any session details are persisted.
// It does not by itself change the authenticated/unauthenticated status.
func (c *Controller) HandleSessionVerification(ctx context.Context, res *api.SessionResult) {
	if res == nil || !res.Success {
		return
	}
	c.tokens.SetVerified(ctx, true, true)
	if len(res.SessionDetails) > 0 {
		c.tokens.SetSessionDetails(ctx, string(res.SessionDetails))
	}
}

// ConfirmVerifiedLocally marks the session verified without any server
// round trip. This is the "I've clicked the link" shortcut from the
// verification overlay; it trusts the client by design and is kept in one
// place so the trust boundary can be hardened without touching call sites.
func (c *Controller) ConfirmVerifiedLocally(ctx context.Context) {
	c.tokens.SetVerified(ctx, true, true)
}

// VerifyMagicLink completes a magic-link login with the token from the
// emailed URL.
func (c *Controller) VerifyMagicLink(ctx context.Context, linkToken string, rememberMe bool) LoginResult {
	ep := c.bumpEpoch()

	res, err := c.api.VerifyMagicLink(ctx, linkToken)
	if err != nil {
		return LoginResult{Message: failureMessage(err)}
	}
	return c.completeAuth(ctx, ep, res, rememberMe)
}

// Verify2FA completes a two-factor login with the one-time code.
func (c *Controller) Verify2FA(ctx context.Context, userID, code string, rememberMe bool) LoginResult {
	ep := c.bumpEpoch()

	res, err := c.api.Verify2FA(ctx, userID, code)
	if err != nil {
		return LoginResult{Message: failureMessage(err)}
	}
	return c.completeAuth(ctx, ep, res, rememberMe)
}

// ApplyUserUpdate replaces the cached identity with a fresh copy pushed by
// the backend (the auth:update-user realtime event).
func (c *Controller) ApplyUserUpdate(ctx context.Context, u *api.User) {
	if u == nil {
		return
	}
	c.mu.Lock()
	if c.status != StatusAuthenticated {
		c.mu.Unlock()
		return
	}
	c.user = u
	c.mu.Unlock()
	c.cacheUser(ctx, u)
}

// ---- internals ----

func (c *Controller) bumpEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	return c.epoch
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// commit runs fn under the lock iff ep is still the newest epoch, i.e. no
// login/logout/bootstrap superseded the operation that captured ep.
func (c *Controller) commit(ep uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return false
	}
	fn()
	return true
}

// cacheUser persists the denormalized identity for the next optimistic
// paint: always in the session scope, durably only with "remember me".
func (c *Controller) cacheUser(ctx context.Context, u *api.User) {
	if u == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.session.Set(ctx, storage.KeyUserData, string(data)); err != nil {
		c.log.Warn(ctx, "failed to cache identity", "err", err)
	}
	if c.tokens.RememberMe(ctx) {
		if err := c.durable.Set(ctx, storage.KeyUserData, string(data)); err != nil {
			c.log.Warn(ctx, "failed to cache identity durably", "err", err)
		}
	}
}

func (c *Controller) loadCachedUser(ctx context.Context) *api.User {
	for _, sc := range []storage.Scope{c.session, c.durable} {
		raw, err := sc.Get(ctx, storage.KeyUserData)
		if err != nil || raw == "" {
			continue
		}
		var u api.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
			continue
		}
		return &u
	}
	return nil
}

func failureMessage(err error) string {
	if errors.Is(err, api.ErrUnavailable) {
		return "server unavailable, please try again"
	}
	return err.Error()
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
