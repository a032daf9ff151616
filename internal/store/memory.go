package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store used when no database is configured and
// by tests. Fail* hooks inject errors per operation.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]*Message
	order    []string
	statuses map[string]Status
	avatars  map[string]string
	sessions map[string]int64
	now      func() time.Time

	FailCreate func(*Message) error
	FailDelete func(id string) error
	FailStatus func(userID string, status Status) error
	FailAvatar func(userID string) error
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]*Message),
		statuses: make(map[string]Status),
		avatars:  make(map[string]string),
		sessions: make(map[string]int64),
		now:      time.Now,
	}
}

// CreateMessage implements MessageStore.
func (s *Memory) CreateMessage(_ context.Context, msg *Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		if err := s.FailCreate(msg); err != nil {
			return nil, err
		}
	}

	rec := *msg
	rec.Normalize()
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now()
	rec.SavedBy = append([]string{}, rec.SavedBy...)
	s.messages[rec.ID] = &rec
	s.order = append(s.order, rec.ID)

	out := rec
	return &out, nil
}

// DeleteMessage implements MessageStore.
func (s *Memory) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		if err := s.FailDelete(id); err != nil {
			return err
		}
	}
	if _, ok := s.messages[id]; !ok {
		return ErrNotFound
	}
	delete(s.messages, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of one message.
func (s *Memory) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return copyMessage(m), true
}

// Len reports the number of stored messages.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Memory) filter(keep func(*Message) bool) []Message {
	out := make([]Message, 0)
	for _, id := range s.order {
		if m := s.messages[id]; keep(m) {
			out = append(out, copyMessage(m))
		}
	}
	return out
}

// History implements MessageStore.
func (s *Memory) History(_ context.Context, userA, userB string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(m *Message) bool {
		return (m.From == userA && m.To == userB) || (m.From == userB && m.To == userA)
	}), nil
}

// GroupHistory implements MessageStore.
func (s *Memory) GroupHistory(_ context.Context, roomID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(m *Message) bool {
		return m.To == roomID && m.Kind == KindGroup
	}), nil
}

// Contacts implements MessageStore.
func (s *Memory) Contacts(_ context.Context, userID string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPeer := make(map[string]*Contact)
	for _, id := range s.order {
		m := s.messages[id]
		if m.Kind == KindGroup {
			continue
		}
		var peer string
		switch userID {
		case m.From:
			peer = m.To
		case m.To:
			peer = m.From
		default:
			continue
		}
		if peer == userID {
			continue
		}
		byPeer[peer] = &Contact{
			UserID:               peer,
			LastMessage:          m.Text,
			LastMessageTimestamp: m.Timestamp,
			lastAt:               m.CreatedAt,
		}
	}
	return sortContacts(byPeer), nil
}

// ToggleSaved implements MessageStore.
func (s *Memory) ToggleSaved(_ context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	for i, uid := range m.SavedBy {
		if uid == userID {
			m.SavedBy = append(m.SavedBy[:i], m.SavedBy[i+1:]...)
			return false, nil
		}
	}
	m.SavedBy = append(m.SavedBy, userID)
	return true, nil
}

// SavedMessages implements MessageStore.
func (s *Memory) SavedMessages(_ context.Context, userID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filter(func(m *Message) bool {
		for _, uid := range m.SavedBy {
			if uid == userID {
				return true
			}
		}
		return false
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SetUserStatus implements StatusStore.
func (s *Memory) SetUserStatus(_ context.Context, userID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatus != nil {
		if err := s.FailStatus(userID, status); err != nil {
			return err
		}
	}
	s.statuses[userID] = status
	return nil
}

// SetAvatar implements UserStore.
func (s *Memory) SetAvatar(_ context.Context, userID, avatar string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAvatar != nil {
		if err := s.FailAvatar(userID); err != nil {
			return err
		}
	}
	s.avatars[userID] = avatar
	return nil
}

// Acquire counts one more worker holding userID online.
func (s *Memory) Acquire(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID]++
	return s.sessions[userID], nil
}

// Release counts one worker fewer holding userID online.
func (s *Memory) Release(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID]--
	n := s.sessions[userID]
	if n <= 0 {
		delete(s.sessions, userID)
	}
	return n, nil
}

// Status returns the last written status, or offline.
func (s *Memory) Status(userID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[userID]; ok {
		return st
	}
	return StatusOffline
}

// Avatar returns the last written avatar.
func (s *Memory) Avatar(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatars[userID]
}

func copyMessage(m *Message) Message {
	out := *m
	out.SavedBy = append([]string{}, m.SavedBy...)
	return out
}

func sortContacts(byPeer map[string]*Contact) []Contact {
	out := make([]Contact, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].lastAt.Equal(out[j].lastAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].lastAt.After(out[j].lastAt)
	})
	return out
}
