// Package delivery routes outbound events to connection handles. Router
// persists first and then publishes an Envelope through a Fanout; Local
// resolves envelopes against this process's registry and room channel.
package delivery

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/Tyrowin/nexus-chat-server/internal/metrics"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
)

// Target selects the connections an event goes to. Fields combine; a
// handle reached through several fields receives the frame once.
type Target struct {
	Users   []string          `json:"users,omitempty"`
	Handles []presence.Handle `json:"handles,omitempty"`
	Room    string            `json:"room,omitempty"`
	All     bool              `json:"all,omitempty"`
}

// Envelope is a targeted, already encoded protocol frame.
type Envelope struct {
	Target Target          `json:"target"`
	Frame  json.RawMessage `json:"frame"`
}

// Fanout carries envelopes to the processes holding the target connections.
type Fanout interface {
	Publish(ctx context.Context, env Envelope) error
}

// Resolver answers which local handles a target covers. It is read-only.
type Resolver interface {
	HandlesOf(userID string) []presence.Handle
	Members(roomID string) []presence.Handle
	AllHandles() []presence.Handle
}

// Sender queues a frame on one local connection.
type Sender interface {
	Send(h presence.Handle, frame []byte) bool
}

// Local delivers envelopes to connections of this process.
type Local struct {
	Resolver Resolver
	Sender   Sender
}

// Publish implements Fanout.
func (l Local) Publish(_ context.Context, env Envelope) error {
	l.Deliver(env)
	return nil
}

// Deliver resolves the target and queues the frame, returning how many
// connections accepted it.
func (l Local) Deliver(env Envelope) int {
	seen := make(map[presence.Handle]struct{})
	var handles []presence.Handle
	add := func(hs []presence.Handle) {
		for _, h := range hs {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			handles = append(handles, h)
		}
	}

	if env.Target.All {
		add(l.Resolver.AllHandles())
	} else {
		for _, u := range env.Target.Users {
			add(l.Resolver.HandlesOf(u))
		}
		add(env.Target.Handles)
		if env.Target.Room != "" {
			add(l.Resolver.Members(env.Target.Room))
		}
	}

	event := gjson.GetBytes(env.Frame, "event").String()
	delivered := 0
	for _, h := range handles {
		if l.Sender.Send(h, env.Frame) {
			delivered++
		}
	}
	metrics.FramesDelivered.WithLabelValues(event).Add(float64(delivered))
	return delivered
}
