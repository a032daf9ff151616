// Package integration exercises the chat server end to end over real
// WebSocket connections.
package integration

import (
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

// TestSecondTabDoesNotAnnounceAgain verifies that a user opening two
// connections is announced online exactly once.
func TestSecondTabDoesNotAnnounceAgain(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})

	watcher := env.Join(t, "watcher")
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, nil)

	env.Join(t, "u1")
	var who string
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, &who)
	if who != "u1" {
		t.Fatalf("userOnline for %q, want u1", who)
	}

	env.Join(t, "u1")
	testhelpers.WaitConnections(t, env.Hub, 3)
	testhelpers.ExpectNoEvent(t, watcher, protocol.EventUserOnline, 300*time.Millisecond)

	if got := env.Store.Status("u1"); got != store.StatusOnline {
		t.Errorf("persisted status = %q, want online", got)
	}
}

// TestUserGoesOfflineAfterGracePeriod verifies the delayed offline
// transition once every connection of a user is gone.
func TestUserGoesOfflineAfterGracePeriod(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{GracePeriod: 150 * time.Millisecond})

	watcher := env.Join(t, "watcher")
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, nil)

	tab := env.Join(t, "u1")
	testhelpers.WaitOnline(t, env.Hub, "u1", true)

	start := time.Now()
	if err := testhelpers.CloseWebSocket(tab); err != nil {
		t.Fatalf("close: %v", err)
	}

	var who string
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOffline, &who)
	if who != "u1" {
		t.Fatalf("userOffline for %q, want u1", who)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("offline announced after %v, before the grace period", elapsed)
	}
	if got := env.Store.Status("u1"); got != store.StatusOffline {
		t.Errorf("persisted status = %q, want offline", got)
	}
}

// TestReloadInsideGracePeriodStaysOnline verifies that closing and
// reopening a connection quickly produces no offline notification.
func TestReloadInsideGracePeriodStaysOnline(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{GracePeriod: 300 * time.Millisecond})

	watcher := env.Join(t, "watcher")
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, nil)

	tab := env.Join(t, "u1")
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, nil)

	_ = testhelpers.CloseWebSocket(tab)
	testhelpers.WaitConnections(t, env.Hub, 1)
	env.Join(t, "u1")
	testhelpers.WaitConnections(t, env.Hub, 2)

	testhelpers.ExpectNoEvent(t, watcher, protocol.EventUserOffline, 600*time.Millisecond)
	testhelpers.WaitOnline(t, env.Hub, "u1", true)
}

// TestDisconnectBeforeJoinIsHarmless verifies that a connection closing
// without ever joining changes no presence state.
func TestDisconnectBeforeJoinIsHarmless(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})

	watcher := env.Join(t, "watcher")
	testhelpers.ExpectEvent(t, watcher, protocol.EventUserOnline, nil)

	anon := env.Connect(t)
	testhelpers.WaitConnections(t, env.Hub, 2)
	_ = testhelpers.CloseWebSocket(anon)
	testhelpers.WaitConnections(t, env.Hub, 1)

	testhelpers.ExpectNoEvent(t, watcher, protocol.EventUserOffline, 400*time.Millisecond)
}
