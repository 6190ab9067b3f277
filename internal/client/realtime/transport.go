// Package realtime maintains the persistent bidirectional connection that
// carries presence, typing, notification, and message-delivery events.
//
// # Overview
//
// One Transport owns at most one physical WebSocket per authenticated
// identity. Connection loss is expected: on an unexpected drop the transport
// re-dials on a short constant backoff using a token fetched fresh from the
// token source on every attempt, so a rotated credential is picked up and a
// stale one never reused. Screens that depend on realtime events call
// EnsureConnected opportunistically instead of running their own reconnect
// loops.
//
// # States
//
//	disconnected --Connect--> connecting --ok--> connected
//	connecting --fail--> disconnected
//	connected --drop--> reconnecting --ok--> connected
//
// There is no terminal failure state: reconnection keeps going while a token
// is available and stops only on explicit Disconnect (e.g. logout).
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/ghosttalk/ghosttalk-client/internal/logging"
)

// State is the transport's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	// ErrNotConnected is returned by Send when no connection is up.
	ErrNotConnected = errors.New("realtime: not connected")

	// errTokenGone stops the reconnect loop once the credential disappears
	// (logout cleared the store).
	errTokenGone = errors.New("realtime: no token available")
)

// TokenSource yields the current bearer token, or "" when logged out.
// The transport calls it on every reconnect attempt; implementations must
// read fresh state rather than return a captured value.
type TokenSource func(ctx context.Context) string

// Handler receives the raw JSON payload of a subscribed event.
type Handler func(data json.RawMessage)

const (
	defaultReconnectDelay = time.Second
	handshakeTimeout      = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

// Transport is the WebSocket implementation of the realtime channel.
// All methods are safe for concurrent use.
type Transport struct {
	url      string
	tokens   TokenSource
	clientID string
	log      logging.Logger
	dialer   *websocket.Dialer

	// reconnectDelay is the constant backoff between reconnect attempts.
	reconnectDelay time.Duration

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	loopCancel context.CancelFunc

	subMu     sync.Mutex
	subs      map[string]map[int64]Handler
	nextSubID int64

	writeMu sync.Mutex
}

// New builds a Transport for the realtime endpoint at url
// (e.g. "wss://api.ghosttalk.app/rt"). clientID identifies this device in
// the connection handshake.
func New(url string, tokens TokenSource, clientID string, log logging.Logger) *Transport {
	if log == nil {
		log = logging.Nop()
	}
	return &Transport{
		url:            url,
		tokens:         tokens,
		clientID:       clientID,
		log:            log,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		reconnectDelay: defaultReconnectDelay,
		state:          StateDisconnected,
		subs:           make(map[string]map[int64]Handler),
	}
}

// SetReconnectDelay overrides the constant backoff between reconnect
// attempts. Call before Connect.
func (t *Transport) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		t.reconnectDelay = d
	}
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect opens the connection using tok as connection-time auth. Idempotent:
// when a connection is already up (or being established) it is a no-op.
// An initial dial failure leaves the transport disconnected; automatic
// retries start only after an established connection drops.
func (t *Transport) Connect(ctx context.Context, tok string) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	loopCtx, cancel := context.WithCancel(context.Background())
	t.loopCancel = cancel
	t.mu.Unlock()

	conn, err := t.dial(ctx, tok)
	if err != nil {
		t.mu.Lock()
		t.state = StateDisconnected
		t.loopCancel = nil
		t.mu.Unlock()
		cancel()
		return err
	}

	t.adopt(loopCtx, conn)
	return nil
}

// EnsureConnected reports whether a new connection attempt was initiated
// (false when one is already up or in progress). Connection loss is expected
// and self-heals; screens call this defensively whenever they mount.
func (t *Transport) EnsureConnected(ctx context.Context, tok string) bool {
	t.mu.Lock()
	busy := t.state != StateDisconnected
	t.mu.Unlock()
	if busy {
		return false
	}

	if err := t.Connect(ctx, tok); err != nil {
		t.log.Warn(ctx, "realtime connect attempt failed", "err", err)
	}
	return true
}

// Disconnect closes the connection and stops any reconnection in progress.
// Idempotent; the transport stays down until the next Connect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel := t.loopCancel
	conn := t.conn
	t.loopCancel = nil
	t.conn = nil
	t.state = StateDisconnected
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
	}
}

// Subscribe registers h for the named event and returns a disposer that
// removes exactly that handler. The disposer is safe to call more than once
// and from any teardown path; callers must invoke it on unmount or handlers
// pile up across remounts.
func (t *Transport) Subscribe(event string, h Handler) func() {
	t.subMu.Lock()
	t.nextSubID++
	id := t.nextSubID
	if t.subs[event] == nil {
		t.subs[event] = make(map[int64]Handler)
	}
	t.subs[event][id] = h
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs[event], id)
			t.subMu.Unlock()
		})
	}
}

// Send emits a named event with the given payload. Returns ErrNotConnected
// when no connection is up; fire-and-forget callers ignore the error.
func (t *Transport) Send(ctx context.Context, event string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	st := t.state
	t.mu.Unlock()
	if conn == nil || st != StateConnected {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// JoinRoom subscribes this connection to a chat room's events.
func (t *Transport) JoinRoom(ctx context.Context, roomID string) error {
	return t.Send(ctx, EventJoinRoom, roomPayload{RoomID: roomID})
}

// LeaveRoom unsubscribes this connection from a chat room's events.
func (t *Transport) LeaveRoom(ctx context.Context, roomID string) error {
	return t.Send(ctx, EventLeaveRoom, roomPayload{RoomID: roomID})
}

// SendMessage posts a chat message to a room over the live connection.
func (t *Transport) SendMessage(ctx context.Context, roomID, body string) error {
	return t.Send(ctx, EventSendMessage, sendMessagePayload{RoomID: roomID, Body: body})
}

// Typing signals that the user started typing in a room.
func (t *Transport) Typing(ctx context.Context, roomID string) error {
	return t.Send(ctx, EventTyping, TypingEvent{RoomID: roomID})
}

// StopTyping signals that the user stopped typing in a room.
func (t *Transport) StopTyping(ctx context.Context, roomID string) error {
	return t.Send(ctx, EventStopTyping, TypingEvent{RoomID: roomID})
}

// Ping sends a keepalive frame.
func (t *Transport) Ping(ctx context.Context) error {
	return t.Send(ctx, EventPing, struct{}{})
}

// AckRead sends the fire-and-forget read receipt for a delivered message.
// Failures are logged and dropped; there is no retry.
func (t *Transport) AckRead(ctx context.Context, roomID, messageID string) {
	err := t.Send(ctx, EventMessageRead, MessageReadEvent{RoomID: roomID, MessageID: messageID})
	if err != nil {
		t.log.Debug(ctx, "read receipt dropped", "room", roomID, "message", messageID, "err", err)
	}
}

// dial performs the WebSocket handshake and sends the connection-time auth
// envelope. The caller owns the returned connection.
func (t *Transport) dial(ctx context.Context, tok string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	if t.clientID != "" {
		header.Set("X-Client-Id", t.clientID)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	auth, err := json.Marshal(authPayload{Token: tok, ClientID: t.clientID})
	if err == nil {
		frame, _ := json.Marshal(Envelope{Event: EventAuth, Data: auth})
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.TextMessage, frame)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// adopt installs conn as the live connection and starts its read loop,
// unless the lifecycle was cancelled while the dial was in flight.
func (t *Transport) adopt(loopCtx context.Context, conn *websocket.Conn) {
	t.mu.Lock()
	if loopCtx.Err() != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.state = StateConnected
	t.mu.Unlock()

	t.log.Info(loopCtx, "realtime connected", "url", t.url)
	go t.readLoop(loopCtx, conn)
}

func (t *Transport) readLoop(loopCtx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if loopCtx.Err() != nil {
				// explicit Disconnect
				return
			}
			t.mu.Lock()
			t.conn = nil
			t.state = StateReconnecting
			t.mu.Unlock()
			_ = conn.Close()

			t.log.Warn(loopCtx, "realtime connection dropped", "err", err)
			t.reconnect(loopCtx)
			return
		}
		t.dispatch(data)
	}
}

// reconnect re-dials on a constant backoff. The token is fetched from the
// token source on every attempt; capturing it once would risk reconnecting
// with a credential that expired or rotated while we were down.
func (t *Transport) reconnect(loopCtx context.Context) {
	backoff := retry.NewConstant(t.reconnectDelay)

	err := retry.Do(loopCtx, backoff, func(ctx context.Context) error {
		tok := t.tokens(ctx)
		if tok == "" {
			return errTokenGone
		}
		conn, err := t.dial(ctx, tok)
		if err != nil {
			return retry.RetryableError(err)
		}
		t.adopt(loopCtx, conn)
		return nil
	})

	if err != nil {
		t.mu.Lock()
		if t.state == StateReconnecting {
			t.state = StateDisconnected
		}
		t.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			t.log.Warn(loopCtx, "realtime reconnection abandoned", "err", err)
		}
	}
}

func (t *Transport) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		t.log.Debug(context.Background(), "dropping malformed realtime frame")
		return
	}

	t.subMu.Lock()
	handlers := make([]Handler, 0, len(t.subs[env.Event]))
	for _, h := range t.subs[env.Event] {
		handlers = append(handlers, h)
	}
	t.subMu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}
