package presence

// RoomLeaver drops every room subscription of a handle.
type RoomLeaver interface {
	DropHandle(h Handle)
}

// Lifecycle binds connection handles to user identities and tears them
// down on disconnect.
type Lifecycle struct {
	tracker  *Tracker
	rooms    RoomLeaver
	bindings map[Handle]string
	live     map[Handle]struct{}
}

// NewLifecycle returns a Lifecycle; rooms may be nil.
func NewLifecycle(tracker *Tracker, rooms RoomLeaver) *Lifecycle {
	return &Lifecycle{
		tracker:  tracker,
		rooms:    rooms,
		bindings: make(map[Handle]string),
		live:     make(map[Handle]struct{}),
	}
}

// Connect allocates a handle for a newly accepted connection. The user is
// unknown until Join.
func (l *Lifecycle) Connect() Handle {
	h := NewHandle()
	l.live[h] = struct{}{}
	return h
}

// Join binds h to userID. Joining again as the same user is a no-op; joining
// as a different user moves the handle.
func (l *Lifecycle) Join(h Handle, userID string) {
	if userID == "" {
		return
	}
	if _, ok := l.live[h]; !ok {
		return
	}
	if prev, ok := l.bindings[h]; ok {
		if prev == userID {
			return
		}
		l.tracker.Leave(prev, h)
	}
	l.bindings[h] = userID
	l.tracker.Join(userID, h)
}

// Disconnect tears h down. Unjoined and already disconnected handles are
// no-ops.
func (l *Lifecycle) Disconnect(h Handle) {
	if _, ok := l.live[h]; !ok {
		return
	}
	delete(l.live, h)
	if l.rooms != nil {
		l.rooms.DropHandle(h)
	}

	userID, ok := l.bindings[h]
	if !ok {
		return
	}
	delete(l.bindings, h)
	l.tracker.Leave(userID, h)
}

// UserOf returns the user bound to h.
func (l *Lifecycle) UserOf(h Handle) (string, bool) {
	id, ok := l.bindings[h]
	return id, ok
}

// Connections returns the number of live handles, joined or not.
func (l *Lifecycle) Connections() int {
	return len(l.live)
}
