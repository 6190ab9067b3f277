package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- test server ----

type testServer struct {
	srv        *httptest.Server
	handshakes chan string // Authorization header of each new connection
	frames     chan Envelope
	conns      chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		handshakes: make(chan string, 16),
		frames:     make(chan Envelope, 64),
		conns:      make(chan *websocket.Conn, 16),
	}
	up := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.handshakes <- r.Header.Get("Authorization")
		ts.conns <- c
		go func() {
			for {
				_, data, err := c.ReadMessage()
				if err != nil {
					return
				}
				var env Envelope
				if json.Unmarshal(data, &env) == nil {
					ts.frames <- env
				}
			}
		}()
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func recvString(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func recvConn(t *testing.T, ch chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
		return nil
	}
}

func recvFrame(t *testing.T, ch chan Envelope, event string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", event)
			return Envelope{}
		}
	}
}

func staticTokens(tok string) TokenSource {
	return func(context.Context) string { return tok }
}

func newTestTransport(ts *testServer, tokens TokenSource) *Transport {
	tr := New(ts.wsURL(), tokens, "device-1", nil)
	tr.reconnectDelay = 10 * time.Millisecond
	return tr
}

// ---- tests ----

func TestTransport_Connect_SendsAuth(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))
	defer tr.Disconnect()

	require.NoError(t, tr.Connect(context.Background(), "T"))
	assert.Equal(t, StateConnected, tr.State())

	assert.Equal(t, "Bearer T", recvString(t, ts.handshakes, "handshake"))

	env := recvFrame(t, ts.frames, EventAuth)
	var auth authPayload
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	assert.Equal(t, "T", auth.Token)
	assert.Equal(t, "device-1", auth.ClientID)
}

func TestTransport_Connect_Idempotent(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))
	defer tr.Disconnect()

	require.NoError(t, tr.Connect(context.Background(), "T"))
	require.NoError(t, tr.Connect(context.Background(), "T"))

	recvString(t, ts.handshakes, "first handshake")
	select {
	case <-ts.handshakes:
		t.Fatal("second Connect must not dial again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_EnsureConnected(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))
	defer tr.Disconnect()

	assert.True(t, tr.EnsureConnected(context.Background(), "T"),
		"first call must initiate a connection")
	assert.False(t, tr.EnsureConnected(context.Background(), "T"),
		"second call must be a no-op while connected")

	recvString(t, ts.handshakes, "handshake")
	select {
	case <-ts.handshakes:
		t.Fatal("EnsureConnected dialed twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_InitialDialFailure_StaysDisconnected(t *testing.T) {
	ts := newTestServer(t)
	url := ts.wsURL()
	ts.srv.Close()

	tr := New(url, staticTokens("T"), "device-1", nil)
	err := tr.Connect(context.Background(), "T")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestTransport_SubscribeDispatchAndDispose(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))
	defer tr.Disconnect()

	got := make(chan string, 8)
	dispose := tr.Subscribe(EventChatMessage, func(data json.RawMessage) {
		var msg ChatMessage
		_ = json.Unmarshal(data, &msg)
		got <- msg.Body
	})

	require.NoError(t, tr.Connect(context.Background(), "T"))
	conn := recvConn(t, ts.conns)

	send := func(body string) {
		data, _ := json.Marshal(ChatMessage{ID: "m1", RoomID: "r1", Body: body})
		frame, _ := json.Marshal(Envelope{Event: EventChatMessage, Data: data})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	}

	send("hello")
	assert.Equal(t, "hello", recvString(t, got, "dispatched message"))

	// disposing twice removes exactly the one handler and is safe
	dispose()
	dispose()

	send("after dispose")
	select {
	case body := <-got:
		t.Fatalf("handler fired after dispose: %q", body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_OutboundRoomEvents(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))
	defer tr.Disconnect()

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx, "T"))
	recvConn(t, ts.conns)

	require.NoError(t, tr.JoinRoom(ctx, "r1"))
	env := recvFrame(t, ts.frames, EventJoinRoom)
	var room roomPayload
	require.NoError(t, json.Unmarshal(env.Data, &room))
	assert.Equal(t, "r1", room.RoomID)

	tr.AckRead(ctx, "r1", "m42")
	env = recvFrame(t, ts.frames, EventMessageRead)
	var ack MessageReadEvent
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.Equal(t, "m42", ack.MessageID)
	assert.Equal(t, "r1", ack.RoomID)
}

func TestTransport_SendWhileDisconnected(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))

	err := tr.Ping(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	// fire-and-forget ack must not panic while down
	tr.AckRead(context.Background(), "r1", "m1")
}

func TestTransport_ReconnectFetchesFreshToken(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	current := "old"
	tokens := func(context.Context) string {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	tr := newTestTransport(ts, tokens)
	defer tr.Disconnect()

	require.NoError(t, tr.Connect(context.Background(), "old"))
	assert.Equal(t, "Bearer old", recvString(t, ts.handshakes, "first handshake"))
	conn := recvConn(t, ts.conns)

	// the credential rotates while the connection is up, then the server
	// drops us; the reconnect dial must carry the rotated token
	mu.Lock()
	current = "new"
	mu.Unlock()
	_ = conn.Close()

	assert.Equal(t, "Bearer new", recvString(t, ts.handshakes, "reconnect handshake"))

	require.Eventually(t, func() bool { return tr.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)
}

func TestTransport_ReconnectStopsWhenTokenGone(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	current := "T"
	tokens := func(context.Context) string {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	tr := newTestTransport(ts, tokens)

	require.NoError(t, tr.Connect(context.Background(), "T"))
	recvString(t, ts.handshakes, "handshake")
	conn := recvConn(t, ts.conns)

	// logout cleared the store before the drop was noticed
	mu.Lock()
	current = ""
	mu.Unlock()
	_ = conn.Close()

	require.Eventually(t, func() bool { return tr.State() == StateDisconnected },
		2*time.Second, 10*time.Millisecond)

	select {
	case <-ts.handshakes:
		t.Fatal("transport dialed without a token")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_DisconnectStopsReconnection(t *testing.T) {
	ts := newTestServer(t)
	tr := newTestTransport(ts, staticTokens("T"))

	require.NoError(t, tr.Connect(context.Background(), "T"))
	recvString(t, ts.handshakes, "handshake")
	recvConn(t, ts.conns)

	tr.Disconnect()
	assert.Equal(t, StateDisconnected, tr.State())

	// no further dial attempts after an explicit disconnect
	select {
	case <-ts.handshakes:
		t.Fatal("transport dialed after Disconnect")
	case <-time.After(150 * time.Millisecond):
	}

	// calling it again is harmless
	tr.Disconnect()
}
