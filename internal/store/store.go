// Package store persists chat messages and user presence fields. The
// presence and delivery layers only depend on the small interfaces here;
// Mongo, Redis and in-memory backends implement them.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a message id does not exist.
var ErrNotFound = errors.New("store: not found")

// Kind classifies a message record.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
	KindGroup Kind = "group"
)

// MediaKind classifies the attachment of a media message.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Status is the persisted presence field of a user record.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Message is one durable chat record. To holds a user id for text and
// media messages and a room id for group messages.
type Message struct {
	ID        string    `json:"_id" bson:"-"`
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	Text      string    `json:"message" bson:"message"`
	Timestamp string    `json:"timestamp" bson:"timestamp"`
	Kind      Kind      `json:"type" bson:"type"`
	MediaKind MediaKind `json:"mediaType,omitempty" bson:"mediaType,omitempty"`
	SavedBy   []string  `json:"savedBy" bson:"savedBy"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Normalize fills defaults and drops fields that do not apply to the kind.
func (m *Message) Normalize() {
	switch m.Kind {
	case KindText, KindMedia, KindGroup:
	default:
		m.Kind = KindText
	}
	if m.Kind != KindMedia || (m.MediaKind != MediaImage && m.MediaKind != MediaVideo) {
		m.MediaKind = ""
	}
	if m.SavedBy == nil {
		m.SavedBy = []string{}
	}
}

// Contact is a conversation partner with the latest exchanged message.
type Contact struct {
	UserID               string `json:"userId"`
	LastMessage          string `json:"lastMessage"`
	LastMessageTimestamp string `json:"lastMessageTimestamp"`
	lastAt               time.Time
}

// MessageStore is the durable message log.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	History(ctx context.Context, userA, userB string) ([]Message, error)
	GroupHistory(ctx context.Context, roomID string) ([]Message, error)
	Contacts(ctx context.Context, userID string) ([]Contact, error)
	ToggleSaved(ctx context.Context, id, userID string) (bool, error)
	SavedMessages(ctx context.Context, userID string) ([]Message, error)
}

// StatusStore records the presence field of a user.
type StatusStore interface {
	SetUserStatus(ctx context.Context, userID string, status Status) error
}

// UserStore is the part of the user collection the socket layer writes.
type UserStore interface {
	StatusStore
	SetAvatar(ctx context.Context, userID, avatar string) error
}

// StatusFanout writes a status to every backend and returns the first error.
// All backends are attempted even when an earlier one fails.
type StatusFanout []StatusStore

// SetUserStatus implements StatusStore.
func (f StatusFanout) SetUserStatus(ctx context.Context, userID string, status Status) error {
	var first error
	for _, s := range f {
		if err := s.SetUserStatus(ctx, userID, status); err != nil && first == nil {
			first = err
		}
	}
	return first
}
