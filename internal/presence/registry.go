// Package presence tracks which users are reachable. Registry maps a user to
// the set of live connection handles, Tracker turns handle churn into
// debounced online/offline transitions, and Lifecycle binds handles to users.
//
// None of the types lock internally: they are owned by one sequencing
// goroutine (the server hub) which applies every event in order.
package presence

import "github.com/google/uuid"

// Handle identifies one live transport session.
type Handle string

// NewHandle allocates a fresh handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Registry maps user ids to their live handles. A user appears in the
// registry iff it has at least one handle.
type Registry struct {
	users map[string]map[Handle]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[Handle]struct{})}
}

// Add inserts h for userID and reports whether it is the user's first handle.
// Adding a handle that is already present is a no-op and returns false.
func (r *Registry) Add(userID string, h Handle) bool {
	set, ok := r.users[userID]
	if !ok {
		set = make(map[Handle]struct{})
		r.users[userID] = set
	}
	if _, dup := set[h]; dup {
		return false
	}
	set[h] = struct{}{}
	return len(set) == 1
}

// Remove deletes h and reports whether it was the user's last handle.
// Removing an unknown handle returns false.
func (r *Registry) Remove(userID string, h Handle) bool {
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, present := set[h]; !present {
		return false
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has at least one handle.
func (r *Registry) IsOnline(userID string) bool {
	return len(r.users[userID]) > 0
}

// HandlesOf returns a snapshot of userID's handles, empty when absent.
func (r *Registry) HandlesOf(userID string) []Handle {
	set := r.users[userID]
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Users returns the ids of every user with a live handle.
func (r *Registry) Users() []string {
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	return out
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	return len(r.users)
}
