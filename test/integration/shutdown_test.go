package integration

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

// TestGracefulShutdown verifies that an idle hub shuts down promptly.
func TestGracefulShutdown(t *testing.T) {
	mem := store.NewMemory()
	hub := server.NewHub(server.HubConfig{Messages: mem, Users: mem})
	go hub.Run()

	if err := hub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Hub shutdown failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := hub.OnlineUsers(ctx); err == nil {
		t.Error("expected queries to fail after shutdown")
	}
}

// TestGracefulShutdownWithClients verifies that active client connections
// are closed and every pump goroutine exits.
func TestGracefulShutdownWithClients(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})

	const numClients = 5
	clients := make([]*websocket.Conn, 0, numClients)
	for i := 0; i < numClients; i++ {
		clients = append(clients, env.Join(t, "user"))
	}

	if err := env.Hub.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	for i, conn := range clients {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			continue
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if isTimeout(err) {
					t.Errorf("Client %d still connected after shutdown", i)
				}
				break
			}
		}
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
