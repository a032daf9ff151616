// Package testhelpers provides common utilities for the end-to-end tests of
// the chat server: a fully wired test server, WebSocket dialing and helpers
// for emitting and awaiting protocol events.
package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-chat-server/internal/api"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. It is in the
// default allow-list.
const TestOrigin = "http://localhost:8080"

// Env is a running hub behind an httptest server.
type Env struct {
	Server *httptest.Server
	Hub    *server.Hub
	Store  *store.Memory
	WSURL  string
}

// Options tweak NewEnv.
type Options struct {
	GracePeriod time.Duration
	Configure   func(cfg *server.Config)
}

// NewEnv starts a hub backed by an in-memory store and serves every route.
// Configuration is reset and the hub shut down when the test ends.
func NewEnv(t *testing.T, opts Options) *Env {
	t.Helper()

	cfg := server.NewConfig()
	if opts.Configure != nil {
		opts.Configure(cfg)
	}
	server.SetConfig(cfg)

	grace := opts.GracePeriod
	if grace == 0 {
		grace = 200 * time.Millisecond
	}

	mem := store.NewMemory()
	hub := server.NewHub(server.HubConfig{
		Messages:       mem,
		Users:          mem,
		GracePeriod:    grace,
		PersistTimeout: time.Second,
	})
	go hub.Run()

	router := api.NewRouter(api.Options{Messages: mem, Presence: hub})
	srv := httptest.NewServer(server.SetupRoutes(hub, router))

	t.Cleanup(func() {
		srv.Close()
		_ = hub.Shutdown(2 * time.Second)
		server.SetConfig(nil)
	})

	return &Env{
		Server: srv,
		Hub:    hub,
		Store:  mem,
		WSURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

// Connect dials the env's WebSocket endpoint and closes the connection
// when the test ends.
func (e *Env) Connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(e.WSURL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Join dials a connection, joins it as userID and waits until the hub has
// bound it.
func (e *Env) Join(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	before := e.sessions(t, userID)
	conn := e.Connect(t)
	Emit(t, conn, protocol.EventJoin, userID)
	WaitSessions(t, e.Hub, userID, before+1)
	return conn
}

func (e *Env) sessions(t *testing.T, userID string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stats, err := e.Hub.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return stats.Sessions[userID]
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// an allowed Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Emit sends one event frame.
func Emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	frame, err := protocol.Encode(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// ReadEvent reads the next frame within timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return env, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(raw, &env)
	return env, err
}

// ExpectEvent reads frames until one named event arrives, skipping others,
// and decodes its data into out when out is non-nil.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string, out interface{}) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %s", event)
		}
		env, err := ReadEvent(conn, remaining)
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

// ExpectNoEvent fails if a frame named event arrives within window. Other
// frames are ignored. A read that times out leaves the connection unusable
// for further reads, so call it last on a connection.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, window time.Duration) {
	t.Helper()
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		env, err := ReadEvent(conn, remaining)
		if err != nil {
			return
		}
		if env.Event == event {
			t.Fatalf("unexpected %s: %s", event, string(env.Data))
		}
	}
}

// WaitOnline polls the hub until userID's presence equals want.
func WaitOnline(t *testing.T, hub *server.Hub, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		users, err := hub.OnlineUsers(ctx)
		cancel()
		if err == nil && contains(users, userID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s online=%v not reached", userID, want)
}

// WaitSessions polls the hub until userID has n joined connections.
func WaitSessions(t *testing.T, hub *server.Hub, userID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		stats, err := hub.Snapshot(ctx)
		cancel()
		if err == nil && stats.Sessions[userID] == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s did not reach %d sessions", userID, n)
}

// WaitConnections polls the hub until it holds n connections.
func WaitConnections(t *testing.T, hub *server.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		stats, err := hub.Snapshot(ctx)
		cancel()
		if err == nil && stats.Connections == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub did not reach %d connections", n)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
