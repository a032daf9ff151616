package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Tyrowin/nexus-chat-server/internal/api"
	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

// TestHealthEndpoint verifies the plain text health check.
func TestHealthEndpoint(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("unexpected body %q", body)
	}
}

// TestWebSocketEndpointRejectsPost verifies the method check.
func TestWebSocketEndpointRejectsPost(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})

	resp := testhelpers.MakeRequest(t, http.MethodPost, env.Server.URL+"/ws")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

// TestPresenceEndpoint verifies the JSON presence snapshot.
func TestPresenceEndpoint(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	env.Join(t, "alice")
	env.Join(t, "alice")
	env.Connect(t)
	testhelpers.WaitConnections(t, env.Hub, 3)

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/presence")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	var stats server.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Connections != 3 {
		t.Errorf("connections = %d, want 3", stats.Connections)
	}
	if len(stats.Online) != 1 || stats.Online[0] != "alice" {
		t.Errorf("online = %v, want [alice]", stats.Online)
	}
	if stats.Sessions["alice"] != 2 {
		t.Errorf("alice sessions = %d, want 2", stats.Sessions["alice"])
	}
}

// TestMetricsEndpoint verifies the Prometheus exposition.
func TestMetricsEndpoint(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	env.Join(t, "alice")

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/metrics")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"nexus_connections_active", "nexus_events_received_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

// TestHistoryAPIMounted verifies the REST API is served next to the socket
// and sees live presence.
func TestHistoryAPIMounted(t *testing.T) {
	env := testhelpers.NewEnv(t, testhelpers.Options{})
	ctx := context.Background()
	if _, err := env.Store.CreateMessage(ctx, &store.Message{From: "alice", To: "bob", Text: "hi"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := env.Store.CreateMessage(ctx, &store.Message{From: "carol", To: "alice", Text: "yo"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	env.Join(t, "bob")

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+api.Prefix+"/online-contacts?userId=alice")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	var contacts []store.Contact
	if err := json.NewDecoder(resp.Body).Decode(&contacts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(contacts) != 1 || contacts[0].UserID != "bob" {
		t.Fatalf("online contacts = %+v, want only bob", contacts)
	}
}
