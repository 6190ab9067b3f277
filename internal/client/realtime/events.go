package realtime

import (
	"encoding/json"
	"time"
)

// Inbound event names pushed by the server.
const (
	EventNotification  = "notification"
	EventFriendRequest = "friend_request"
	EventSessionLogin  = "session_login"
	EventChatMessage   = "chat_message"
	EventTyping        = "typing"
	EventStopTyping    = "stopTyping"
	EventMessageRead   = "messageRead"
	EventUserUpdate    = "auth:update-user"
)

// Outbound event names sent by the client.
const (
	EventAuth        = "auth"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventPing        = "ping"
)

// Friend-request discriminator values carried in FriendRequestEvent.Type.
const (
	FriendRequestIncoming = "friend_request"
	FriendRequestAccepted = "friend_request_accepted"
)

// Envelope is the wire frame: a named event plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notification is a generic server push shown to the user.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// FriendRequestEvent covers both a new request and an acceptance,
// discriminated by Type.
type FriendRequestEvent struct {
	Type            string `json:"type"` // FriendRequestIncoming | FriendRequestAccepted
	FromUserID      string `json:"fromUserId"`
	FromDisplayName string `json:"fromDisplayName"`
}

// SessionLoginEvent announces a login on another device for this account.
type SessionLoginEvent struct {
	Device string    `json:"device"`
	IP     string    `json:"ip"`
	At     time.Time `json:"at"`
}

// ChatMessage is a delivered room message.
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// TypingEvent signals typing start/stop in a room; the same payload is used
// for both the typing and stopTyping events.
type TypingEvent struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// MessageReadEvent is the read receipt, flowing in both directions: inbound
// when someone else reads, outbound as the client's fire-and-forget ack.
type MessageReadEvent struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId,omitempty"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
}

type authPayload struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId,omitempty"`
}
