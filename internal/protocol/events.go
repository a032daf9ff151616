// Package protocol defines the JSON event envelope exchanged over the
// WebSocket and the payload of every event.
//
// Every frame is {"event": <name>, "data": <payload>}.
package protocol

// Client to server events.
const (
	EventJoin                 = "join"
	EventSendMessage          = "sendMessage"
	EventSendGroupMessage     = "sendGroupMessage"
	EventJoinRoom             = "joinRoom"
	EventLeaveRoom            = "leaveRoom"
	EventDeleteGroupMessage   = "deleteGroupMessage"
	EventDeletePrivateMessage = "deletePrivateMessage"
	EventAvatarUpdated        = "avatarUpdated"
)

// Server to client events.
const (
	EventUserOnline            = "userOnline"
	EventUserOffline           = "userOffline"
	EventReceiveMessage        = "receiveMessage"
	EventReceiveGroupMessage   = "receiveGroupMessage"
	EventGroupMessageDeleted   = "groupMessageDeleted"
	EventPrivateMessageDeleted = "privateMessageDeleted"
	EventUserAvatarUpdated     = "userAvatarUpdated"
	EventError                 = "error"
)

var inbound = map[string]bool{
	EventJoin:                 true,
	EventSendMessage:          true,
	EventSendGroupMessage:     true,
	EventJoinRoom:             true,
	EventLeaveRoom:            true,
	EventDeleteGroupMessage:   true,
	EventDeletePrivateMessage: true,
	EventAvatarUpdated:        true,
}

// DirectMessage is the sendMessage and receiveMessage payload. ID is only
// present once the message was persisted.
type DirectMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"_id,omitempty"`
	Type      string `json:"type,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// GroupMessage is the sendGroupMessage and receiveGroupMessage payload.
type GroupMessage struct {
	RoomID    string `json:"roomId"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"_id,omitempty"`
}

// DeleteGroupMessage asks to delete a message in a room.
type DeleteGroupMessage struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// DeletePrivateMessage asks to delete a direct message.
type DeletePrivateMessage struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// MessageDeleted is the payload of both deletion notifications.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

// AvatarUpdate is the avatarUpdated and userAvatarUpdated payload.
type AvatarUpdate struct {
	UserID    string `json:"userId"`
	NewAvatar string `json:"newAvatar"`
}

// ErrorPayload tells a client its last frame was rejected.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
