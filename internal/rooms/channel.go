// Package rooms implements transport-level room subscriptions: which live
// connections currently receive a room's broadcasts. It knows nothing about
// durable room membership.
package rooms

import "github.com/Tyrowin/nexus-chat-server/internal/presence"

// Channel keeps a forward index room -> handles and a reverse index
// handle -> rooms so a disconnect can drop every subscription at once.
type Channel struct {
	rooms   map[string]map[presence.Handle]struct{}
	handles map[presence.Handle]map[string]struct{}
}

// NewChannel returns an empty Channel.
func NewChannel() *Channel {
	return &Channel{
		rooms:   make(map[string]map[presence.Handle]struct{}),
		handles: make(map[presence.Handle]map[string]struct{}),
	}
}

// Join subscribes h to roomID. Joining twice is a no-op.
func (c *Channel) Join(h presence.Handle, roomID string) {
	if roomID == "" {
		return
	}
	members, ok := c.rooms[roomID]
	if !ok {
		members = make(map[presence.Handle]struct{})
		c.rooms[roomID] = members
	}
	members[h] = struct{}{}

	joined, ok := c.handles[h]
	if !ok {
		joined = make(map[string]struct{})
		c.handles[h] = joined
	}
	joined[roomID] = struct{}{}
}

// Leave unsubscribes h from roomID. Leaving a room never joined is a no-op.
func (c *Channel) Leave(h presence.Handle, roomID string) {
	if members, ok := c.rooms[roomID]; ok {
		delete(members, h)
		if len(members) == 0 {
			delete(c.rooms, roomID)
		}
	}
	if joined, ok := c.handles[h]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(c.handles, h)
		}
	}
}

// DropHandle removes every subscription of h.
func (c *Channel) DropHandle(h presence.Handle) {
	for roomID := range c.handles[h] {
		if members, ok := c.rooms[roomID]; ok {
			delete(members, h)
			if len(members) == 0 {
				delete(c.rooms, roomID)
			}
		}
	}
	delete(c.handles, h)
}

// Members returns a snapshot of the handles subscribed to roomID.
func (c *Channel) Members(roomID string) []presence.Handle {
	members := c.rooms[roomID]
	out := make([]presence.Handle, 0, len(members))
	for h := range members {
		out = append(out, h)
	}
	return out
}

// RoomsOf returns the rooms h is subscribed to.
func (c *Channel) RoomsOf(h presence.Handle) []string {
	joined := c.handles[h]
	out := make([]string, 0, len(joined))
	for roomID := range joined {
		out = append(out, roomID)
	}
	return out
}
