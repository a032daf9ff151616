package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"

	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

type staticPresence struct {
	users []string
	err   error
}

func (p staticPresence) OnlineUsers(context.Context) ([]string, error) {
	return p.users, p.err
}

func setupAPI(t *testing.T, presence Presence) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	srv := httptest.NewServer(NewRouter(Options{Messages: mem, Presence: presence}))
	t.Cleanup(srv.Close)
	return srv, mem
}

func seed(t *testing.T, mem *store.Memory, msg store.Message) string {
	t.Helper()
	rec, err := mem.CreateMessage(context.Background(), &msg)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec.ID
}

func do(t *testing.T, method, url string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHistoryReturnsBothDirections(t *testing.T) {
	srv, mem := setupAPI(t, nil)
	seed(t, mem, store.Message{From: "u1", To: "u2", Text: "hi"})
	seed(t, mem, store.Message{From: "u2", To: "u1", Text: "hey"})
	seed(t, mem, store.Message{From: "u1", To: "u3", Text: "other"})

	var got []store.Message
	if code := do(t, http.MethodGet, srv.URL+Prefix+"/history?user1=u1&user2=u2", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(got) != 2 || got[0].Text != "hi" || got[1].Text != "hey" {
		t.Fatalf("unexpected history: %+v", got)
	}
	if got[0].ID == "" {
		t.Error("history entries should carry _id")
	}
}

func TestHistoryRequiresBothUsers(t *testing.T) {
	srv, _ := setupAPI(t, nil)
	if code := do(t, http.MethodGet, srv.URL+Prefix+"/history?user1=u1", nil); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestGroupHistoryEmptyRoomIsEmptyList(t *testing.T) {
	srv, mem := setupAPI(t, nil)
	seed(t, mem, store.Message{From: "u1", To: "r1", Text: "yo", Kind: store.KindGroup})

	var got []store.Message
	do(t, http.MethodGet, srv.URL+Prefix+"/group/r1", &got)
	if len(got) != 1 || got[0].Kind != store.KindGroup {
		t.Fatalf("unexpected group history: %+v", got)
	}

	var empty []store.Message
	do(t, http.MethodGet, srv.URL+Prefix+"/group/nobody", &empty)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v", empty)
	}
}

func TestOnlineContactsFiltersByLivePresence(t *testing.T) {
	srv, mem := setupAPI(t, staticPresence{users: []string{"u2"}})
	seed(t, mem, store.Message{From: "u1", To: "u2", Text: "a"})
	seed(t, mem, store.Message{From: "u3", To: "u1", Text: "b"})

	var all []store.Contact
	do(t, http.MethodGet, srv.URL+Prefix+"/contacts?userId=u1", &all)
	if len(all) != 2 {
		t.Fatalf("contacts = %+v, want 2", all)
	}

	var online []store.Contact
	do(t, http.MethodGet, srv.URL+Prefix+"/online-contacts?userId=u1", &online)
	if len(online) != 1 || online[0].UserID != "u2" {
		t.Fatalf("online contacts = %+v, want only u2", online)
	}
}

func TestOnlineContactsPresenceFailure(t *testing.T) {
	srv, mem := setupAPI(t, staticPresence{err: errors.New("loop stopped")})
	seed(t, mem, store.Message{From: "u1", To: "u2", Text: "a"})

	if code := do(t, http.MethodGet, srv.URL+Prefix+"/online-contacts?userId=u1", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
}

func TestDeleteMessage(t *testing.T) {
	srv, mem := setupAPI(t, nil)
	id := seed(t, mem, store.Message{From: "u1", To: "u2", Text: "bye"})

	if code := do(t, http.MethodDelete, srv.URL+Prefix+"/"+id, nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	if _, ok := mem.Get(id); ok {
		t.Fatal("message still stored")
	}
	if code := do(t, http.MethodDelete, srv.URL+Prefix+"/"+id, nil); code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", code)
	}
}

func TestDeleteStoreFailure(t *testing.T) {
	srv, mem := setupAPI(t, nil)
	id := seed(t, mem, store.Message{From: "u1", To: "u2", Text: "x"})
	mem.FailDelete = func(string) error { return errors.New("db down") }

	if code := do(t, http.MethodDelete, srv.URL+Prefix+"/"+id, nil); code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
}

func TestToggleSavedAndList(t *testing.T) {
	srv, mem := setupAPI(t, nil)
	id := seed(t, mem, store.Message{From: "u1", To: "u2", Text: "keep"})

	var res map[string]bool
	do(t, http.MethodPost, srv.URL+Prefix+"/"+id+"/save?userId=u2", &res)
	if !res["saved"] {
		t.Fatalf("first toggle = %+v, want saved", res)
	}

	var saved []store.Message
	do(t, http.MethodGet, srv.URL+Prefix+"/saved/u2", &saved)
	if len(saved) != 1 || saved[0].ID != id {
		t.Fatalf("saved = %+v", saved)
	}

	res = nil
	do(t, http.MethodPost, srv.URL+Prefix+"/"+id+"/save?userId=u2", &res)
	if res["saved"] {
		t.Fatal("second toggle should unsave")
	}

	if code := do(t, http.MethodPost, srv.URL+Prefix+"/missing/save?userId=u2", nil); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if code := do(t, http.MethodPost, srv.URL+Prefix+"/"+id+"/save", nil); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}
