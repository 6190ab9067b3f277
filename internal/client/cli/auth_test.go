package cli

import (
	"bufio"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghosttalk/ghosttalk-client/internal/client/api"
	"github.com/ghosttalk/ghosttalk-client/internal/client/realtime"
	"github.com/ghosttalk/ghosttalk-client/internal/client/session"
	"github.com/ghosttalk/ghosttalk-client/internal/client/storage"
	"github.com/ghosttalk/ghosttalk-client/internal/client/token"
	"github.com/ghosttalk/ghosttalk-client/internal/logging"
)

// stubInputs replaces the interactive input seams for the duration of a test.
func stubInputs(t *testing.T, text string, password []byte, confirm bool) {
	t.Helper()
	origST, origGP, origGC := getSimpleText, getPassword, getConfirm
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return text, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return append([]byte(nil), password...), nil }
	getConfirm = func(_ *bufio.Reader, _ string, _ io.Writer) (bool, error) { return confirm, nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
		getConfirm = origGC
	})
}

func silencePrintln(t *testing.T) {
	t.Helper()
	orig := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = orig })
}

// fakeAuthAPI implements api.Client for the auth commands.
type fakeAuthAPI struct {
	loginEmail    string
	loginPassword string
	loginRes      *api.AuthResult

	regReq api.RegisterRequest
	regRes *api.RegisterResult
}

func (f *fakeAuthAPI) Login(_ context.Context, email, password string) (*api.AuthResult, error) {
	f.loginEmail, f.loginPassword = email, password
	if f.loginRes != nil {
		return f.loginRes, nil
	}
	return &api.AuthResult{}, nil
}

func (f *fakeAuthAPI) Register(_ context.Context, req api.RegisterRequest) (*api.RegisterResult, error) {
	f.regReq = req
	if f.regRes != nil {
		return f.regRes, nil
	}
	return &api.RegisterResult{Status: api.Status{Success: true}}, nil
}

func (f *fakeAuthAPI) Logout(context.Context) error { return nil }
func (f *fakeAuthAPI) VerifyToken(context.Context) (*api.AuthResult, error) {
	return &api.AuthResult{}, nil
}
func (f *fakeAuthAPI) Validate(context.Context) error { return nil }
func (f *fakeAuthAPI) VerifySession(context.Context, string) (*api.SessionResult, error) {
	return &api.SessionResult{Status: api.Status{Success: true}}, nil
}
func (f *fakeAuthAPI) VerifyMagicLink(context.Context, string) (*api.AuthResult, error) {
	return &api.AuthResult{}, nil
}
func (f *fakeAuthAPI) Verify2FA(context.Context, string, string) (*api.AuthResult, error) {
	return &api.AuthResult{}, nil
}

// nopTransport satisfies the controller's transport dependency.
type nopTransport struct{}

func (nopTransport) Connect(context.Context, string) error        { return nil }
func (nopTransport) EnsureConnected(context.Context, string) bool { return false }
func (nopTransport) Disconnect()                                  {}

func newAuthTestApp(client api.Client) *App {
	sess := storage.NewMemoryScope()
	durable := storage.NewMemoryScope()
	tokens := token.NewStore(sess, durable, nil)
	ctrl := session.NewController(client, tokens, nopTransport{}, sess, durable, nil)
	return &App{
		session:    sess,
		durable:    durable,
		tokens:     tokens,
		api:        client,
		transport:  realtime.New("ws://127.0.0.1:0/rt", nil, "device-test", nil),
		controller: ctrl,
		log:        logging.Nop(),
		rooms:      make(map[string]func()),
	}
}

func TestRegister_SendsCollectedFields(t *testing.T) {
	silencePrintln(t)
	stubInputs(t, "alice@example.com", []byte("secret"), false)

	f := &fakeAuthAPI{}
	a := newAuthTestApp(f)

	require.NoError(t, a.Register(context.Background()))

	assert.Equal(t, "alice@example.com", f.regReq.Email)
	assert.Equal(t, "alice@example.com", f.regReq.Name) // stub returns same text for every prompt
	assert.Equal(t, "secret", f.regReq.Password)
	assert.False(t, a.isLoggedIn(), "registration must not log in")
}

func TestLogin_Success(t *testing.T) {
	silencePrintln(t)
	stubInputs(t, "alice@example.com", []byte("secret"), true)

	f := &fakeAuthAPI{loginRes: &api.AuthResult{
		Status: api.Status{Success: true},
		Token:  "T",
		User:   &api.User{ID: "u1", DisplayName: "Alice"},
	}}
	a := newAuthTestApp(f)

	require.NoError(t, a.Login(context.Background()))

	assert.Equal(t, "alice@example.com", f.loginEmail)
	assert.Equal(t, "secret", f.loginPassword)
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "T", a.tokens.Get(context.Background()))
	assert.True(t, a.tokens.RememberMe(context.Background()), "confirm answered yes")
}

func TestLogin_Rejected(t *testing.T) {
	silencePrintln(t)
	stubInputs(t, "alice@example.com", []byte("wrong"), false)

	f := &fakeAuthAPI{loginRes: &api.AuthResult{Status: api.Status{Message: "invalid credentials"}}}
	a := newAuthTestApp(f)

	require.NoError(t, a.Login(context.Background()))
	assert.False(t, a.isLoggedIn())
	assert.Empty(t, a.tokens.Get(context.Background()))
}

func TestLogout_ClearsSession(t *testing.T) {
	silencePrintln(t)
	stubInputs(t, "alice@example.com", []byte("secret"), true)

	f := &fakeAuthAPI{loginRes: &api.AuthResult{
		Status: api.Status{Success: true},
		Token:  "T",
		User:   &api.User{ID: "u1", DisplayName: "Alice"},
	}}
	a := newAuthTestApp(f)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx))
	require.True(t, a.isLoggedIn())

	require.NoError(t, a.Logout(ctx))

	assert.False(t, a.isLoggedIn())
	assert.Empty(t, a.tokens.Get(ctx))
}

func TestDeviceID_StableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemoryScope()

	id1, err := deviceID(ctx, durable)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := deviceID(ctx, durable)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
