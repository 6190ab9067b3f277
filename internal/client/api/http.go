package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghosttalk/ghosttalk-client/internal/logging"
)

// TokenSource yields the current bearer token, or "" when logged out.
// It is consulted on every request so a refreshed token is picked up
// without rebuilding the client.
type TokenSource func(ctx context.Context) string

// HTTPClient is the JSON-over-HTTPS implementation of Client.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
}

// NewHTTPClient builds a client for the REST API rooted at baseURL
// (e.g. "https://api.ghosttalk.app"). tokens may be nil for a client that
// never authenticates.
func NewHTTPClient(baseURL string, tokens TokenSource, log logging.Logger) *HTTPClient {
	if tokens == nil {
		tokens = func(context.Context) string { return "" }
	}
	if log == nil {
		log = logging.Nop()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     log,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type twoFARequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	var res RegisterResult
	if err := c.post(ctx, "/auth/register", req, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	var res struct{ Status }
	return c.post(ctx, "/auth/logout", nil, &res, &res.Status)
}

func (c *HTTPClient) VerifyToken(ctx context.Context) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/verify-token", nil, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

// Validate performs the silent background check: 200 means the token is
// still good, an explicit 4xx means it is not, anything transport-level
// comes back as ErrUnavailable.
func (c *HTTPClient) Validate(ctx context.Context) error {
	var res struct{ Status }
	if err := c.post(ctx, "/auth/validate", nil, &res, &res.Status); err != nil {
		return err
	}
	if res.HTTPStatus >= 400 {
		return fmt.Errorf("validate: %w", ErrUnauthorized)
	}
	return nil
}

func (c *HTTPClient) VerifySession(ctx context.Context, token string) (*SessionResult, error) {
	var res SessionResult
	if err := c.post(ctx, "/auth/verify-session", tokenRequest{Token: token}, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) VerifyMagicLink(ctx context.Context, token string) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/verify-magic-link", tokenRequest{Token: token}, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Verify2FA(ctx context.Context, userID, code string) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/verify-2fa", twoFARequest{UserID: userID, Code: code}, &res, &res.Status); err != nil {
		return nil, err
	}
	return &res, nil
}

// post sends a JSON POST and decodes the response into out. Non-2xx
// responses are normalized into st rather than returned as errors; a body
// that fails to decode on a non-2xx leaves st with the HTTP status text as
// its message.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any, st *Status) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.tokens(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.mapError(ctx, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.mapError(ctx, path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	st.HTTPStatus = resp.StatusCode
	if resp.StatusCode >= 400 {
		st.Success = false
		if st.Message == "" {
			st.Message = http.StatusText(resp.StatusCode)
		}
	}
	return nil
}

// mapError translates transport failures to ErrUnavailable while letting
// caller-initiated cancellation through untouched.
func (c *HTTPClient) mapError(ctx context.Context, path string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.log.Debug(ctx, "request failed", "path", path, "err", err)
	return fmt.Errorf("%s: %w", path, ErrUnavailable)
}
