package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
)

func TestDecodeStringPayload(t *testing.T) {
	in, err := Decode([]byte(`{"event":"join","data":"u1"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Event != EventJoin || in.ID("userId") != "u1" {
		t.Fatalf("got %q %q", in.Event, in.ID("userId"))
	}

	in, _ = Decode([]byte(`{"event":"joinRoom","data":{"roomId":"r1"}}`))
	if in.ID("roomId") != "r1" {
		t.Fatalf("object id payload = %q", in.ID("roomId"))
	}
}

func TestDecodeObjectPayload(t *testing.T) {
	raw := `{"event":"sendMessage","data":{"from":"u1","to":"u2","message":"hi","timestamp":"T","type":"media","mediaType":"image"}}`
	in, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var msg DirectMessage
	if err := in.Bind(&msg); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if msg.From != "u1" || msg.To != "u2" || msg.Message != "hi" || msg.MediaType != "image" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]error{
		`not json`:                        ErrMalformed,
		`{"data":"x"}`:                    ErrMalformed,
		`{"event":42}`:                    ErrMalformed,
		`{"event":"userOnline","data":1}`: ErrUnknownEvent,
		`{"event":"nope"}`:                ErrUnknownEvent,
	}
	for raw, want := range cases {
		if _, err := Decode([]byte(raw)); errors.Cause(err) != want {
			t.Errorf("Decode(%s) = %v, want %v", raw, err, want)
		}
	}
}

func TestBindRejectsNonObject(t *testing.T) {
	in, _ := Decode([]byte(`{"event":"sendMessage","data":"oops"}`))
	var msg DirectMessage
	if err := in.Bind(&msg); errors.Cause(err) != ErrMalformed {
		t.Fatalf("Bind = %v", err)
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(EventUserOnline, "u1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != EventUserOnline || string(env.Data) != `"u1"` {
		t.Fatalf("env = %s %s", env.Event, env.Data)
	}

	frame, _ = Encode(EventReceiveMessage, DirectMessage{From: "a", To: "b", Message: "m", Timestamp: "T"})
	if json.Valid(frame) == false {
		t.Fatal("invalid json")
	}
	var back struct {
		Data map[string]any `json:"data"`
	}
	_ = json.Unmarshal(frame, &back)
	if _, ok := back.Data["_id"]; ok {
		t.Fatal("_id must be omitted when empty")
	}
}
