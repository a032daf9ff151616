package rooms

import (
	"testing"

	"github.com/Tyrowin/nexus-chat-server/internal/presence"
)

func contains(hs []presence.Handle, h presence.Handle) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

func TestJoinLeave(t *testing.T) {
	c := NewChannel()
	c.Join("h1", "r1")
	c.Join("h2", "r1")
	c.Join("h1", "r1")

	if got := c.Members("r1"); len(got) != 2 {
		t.Fatalf("Members = %v", got)
	}

	c.Leave("h2", "r1")
	if contains(c.Members("r1"), "h2") {
		t.Fatal("h2 should have left")
	}

	c.Leave("h2", "r1")
	c.Leave("h3", "nowhere")

	c.Leave("h1", "r1")
	if len(c.rooms) != 0 || len(c.handles) != 0 {
		t.Fatalf("indexes not cleaned: rooms=%v handles=%v", c.rooms, c.handles)
	}
}

func TestDropHandle(t *testing.T) {
	c := NewChannel()
	c.Join("h1", "r1")
	c.Join("h1", "r2")
	c.Join("h2", "r2")

	c.DropHandle("h1")

	if len(c.Members("r1")) != 0 {
		t.Fatal("r1 should be empty")
	}
	if got := c.Members("r2"); len(got) != 1 || got[0] != "h2" {
		t.Fatalf("r2 members = %v", got)
	}
	if len(c.RoomsOf("h1")) != 0 {
		t.Fatal("h1 should have no rooms")
	}
	c.DropHandle("h1")
}

func TestJoinEmptyRoomIgnored(t *testing.T) {
	c := NewChannel()
	c.Join("h1", "")
	if len(c.RoomsOf("h1")) != 0 {
		t.Fatal("empty room id should be ignored")
	}
}
