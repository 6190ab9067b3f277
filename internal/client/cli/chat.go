package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghosttalk/ghosttalk-client/internal/client/api"
	"github.com/ghosttalk/ghosttalk-client/internal/client/realtime"
)

// wireGlobalEvents subscribes the session-wide pushes that are independent of
// any room: notifications, friend requests, logins on other devices, and
// identity updates. Called once per Run; the disposers die with the process.
func (a *App) wireGlobalEvents(ctx context.Context) {
	a.transport.Subscribe(realtime.EventNotification, func(data json.RawMessage) {
		var n realtime.Notification
		if json.Unmarshal(data, &n) != nil {
			return
		}
		printlnFn(fmt.Sprintf("[notification] %s: %s", n.Title, n.Body))
	})

	a.transport.Subscribe(realtime.EventFriendRequest, func(data json.RawMessage) {
		var fr realtime.FriendRequestEvent
		if json.Unmarshal(data, &fr) != nil {
			return
		}
		switch fr.Type {
		case realtime.FriendRequestAccepted:
			printlnFn(fmt.Sprintf("[friends] %s accepted your request", fr.FromDisplayName))
		default:
			printlnFn(fmt.Sprintf("[friends] friend request from %s", fr.FromDisplayName))
		}
	})

	a.transport.Subscribe(realtime.EventSessionLogin, func(data json.RawMessage) {
		var ev realtime.SessionLoginEvent
		if json.Unmarshal(data, &ev) != nil {
			return
		}
		printlnFn(fmt.Sprintf("[security] new login on %s from %s", ev.Device, ev.IP))
	})

	a.transport.Subscribe(realtime.EventUserUpdate, func(data json.RawMessage) {
		var wrapped struct {
			User json.RawMessage `json:"user"`
		}
		payload := data
		if json.Unmarshal(data, &wrapped) == nil && len(wrapped.User) > 0 {
			payload = wrapped.User
		}
		var u api.User
		if json.Unmarshal(payload, &u) != nil || u.ID == "" {
			return
		}
		a.controller.ApplyUserUpdate(ctx, &u)
	})
}

// Join subscribes to a room's events and makes it the active room for say
// and typing. Delivered messages are printed and acked with a fire-and-forget
// read receipt.
func (a *App) Join(ctx context.Context, roomID string) error {
	if !a.isLoggedIn() {
		printlnFn("Log in first.")
		return nil
	}

	a.roomMu.Lock()
	_, joined := a.rooms[roomID]
	if joined {
		a.activeRm = roomID
	}
	a.roomMu.Unlock()
	if joined {
		printlnFn("Switched to room", roomID)
		return nil
	}

	if err := a.transport.JoinRoom(ctx, roomID); err != nil {
		printlnFn("Could not join room:", err.Error())
		return nil
	}

	disposeMsg := a.transport.Subscribe(realtime.EventChatMessage, func(data json.RawMessage) {
		var msg realtime.ChatMessage
		if json.Unmarshal(data, &msg) != nil || msg.RoomID != roomID {
			return
		}
		printlnFn(fmt.Sprintf("[%s] %s: %s", msg.RoomID, msg.SenderName, msg.Body))
		a.transport.AckRead(context.Background(), msg.RoomID, msg.ID)
	})
	disposeTyping := a.transport.Subscribe(realtime.EventTyping, func(data json.RawMessage) {
		var ev realtime.TypingEvent
		if json.Unmarshal(data, &ev) != nil || ev.RoomID != roomID {
			return
		}
		printlnFn(fmt.Sprintf("[%s] %s is typing...", ev.RoomID, ev.UserID))
	})

	a.roomMu.Lock()
	a.rooms[roomID] = func() {
		disposeMsg()
		disposeTyping()
	}
	a.activeRm = roomID
	a.roomMu.Unlock()

	printlnFn("Joined room", roomID)
	return nil
}

// Leave drops the room subscription and tells the server to stop routing its
// events to this connection.
func (a *App) Leave(ctx context.Context, roomID string) error {
	a.roomMu.Lock()
	dispose, joined := a.rooms[roomID]
	delete(a.rooms, roomID)
	if a.activeRm == roomID {
		a.activeRm = ""
	}
	a.roomMu.Unlock()

	if !joined {
		printlnFn("Not in room", roomID)
		return nil
	}

	dispose()
	if err := a.transport.LeaveRoom(ctx, roomID); err != nil {
		a.log.Debug(ctx, "leave room send failed", "room", roomID, "err", err)
	}
	printlnFn("Left room", roomID)
	return nil
}

// Say posts a message to the active room.
func (a *App) Say(ctx context.Context, text string) error {
	roomID := a.activeRoom()
	if roomID == "" {
		printlnFn("Join a room first.")
		return nil
	}
	if err := a.transport.SendMessage(ctx, roomID, text); err != nil {
		printlnFn("Could not send message:", err.Error())
	}
	return nil
}

// Typing signals a short typing burst in the active room.
func (a *App) Typing(ctx context.Context) error {
	roomID := a.activeRoom()
	if roomID == "" {
		printlnFn("Join a room first.")
		return nil
	}
	if err := a.transport.Typing(ctx, roomID); err != nil {
		return nil
	}
	_ = a.transport.StopTyping(ctx, roomID)
	return nil
}

func (a *App) activeRoom() string {
	a.roomMu.Lock()
	defer a.roomMu.Unlock()
	return a.activeRm
}

func (a *App) leaveAllRooms() {
	a.roomMu.Lock()
	disposers := make([]func(), 0, len(a.rooms))
	for _, d := range a.rooms {
		disposers = append(disposers, d)
	}
	a.rooms = make(map[string]func())
	a.activeRm = ""
	a.roomMu.Unlock()

	for _, d := range disposers {
		d()
	}
}
