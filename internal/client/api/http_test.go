package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(tok string) TokenSource {
	return func(context.Context) string { return tok }
}

func TestHTTPClient_Login_Success(t *testing.T) {
	var gotPath, gotCT string
	var gotBody map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"token":   "T",
			"user":    map[string]any{"id": "u1", "displayName": "Alice", "proTier": "free"},
		})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil, nil)
	res, err := c.Login(context.Background(), "a@b.com", "Pw1!")
	require.NoError(t, err)

	assert.Equal(t, "/auth/login", gotPath)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, map[string]string{"email": "a@b.com", "password": "Pw1!"}, gotBody)

	assert.True(t, res.Success)
	assert.Equal(t, "T", res.Token)
	require.NotNil(t, res.User)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
}

func TestHTTPClient_Login_NeedsVerification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":           false,
			"needsVerification": true,
			"message":           "check your inbox",
		})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil, nil)
	res, err := c.Login(context.Background(), "a@b.com", "Pw1!")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.NeedsVerification)
	assert.Equal(t, "check your inbox", res.Message)
}

func TestHTTPClient_NonOK_NormalizedNotThrown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"bad credentials"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil, nil)
	res, err := c.Login(context.Background(), "a@b.com", "nope")
	require.NoError(t, err, "non-2xx must be normalized, not returned as an error")

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusUnauthorized, res.HTTPStatus)
	assert.Equal(t, "bad credentials", res.Message)
}

func TestHTTPClient_NonOK_EmptyBodyGetsStatusText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil, nil)
	res, err := c.VerifyToken(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.HTTPStatus)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), res.Message)
}

func TestHTTPClient_BearerHeaderAttachedWhenTokenPresent(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, staticToken("T"), nil)
	require.NoError(t, c.Validate(context.Background()))
	assert.Equal(t, "Bearer T", gotAuth)

	c = NewHTTPClient(ts.URL, staticToken(""), nil)
	require.NoError(t, c.Validate(context.Background()))
	assert.Equal(t, "", gotAuth)
}

func TestHTTPClient_Validate_RejectionIsUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, staticToken("T"), nil)
	err := c.Validate(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHTTPClient_NetworkErrorMapsToUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close() // connection refused from here on

	c := NewHTTPClient(ts.URL, nil, nil)
	_, err := c.Login(context.Background(), "a@b.com", "Pw1!")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_TimeoutMapsToUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewHTTPClient(ts.URL, nil, nil)
	_, err := c.VerifyToken(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_VerifySession_Details(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		if req["token"] != "mail-token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"sessionDetails":{"device":"pixel"}}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil, nil)
	res, err := c.VerifySession(context.Background(), "mail-token")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.JSONEq(t, `{"device":"pixel"}`, string(res.SessionDetails))
}
