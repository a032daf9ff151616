package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned for frames that are not a valid envelope.
var ErrMalformed = errors.New("protocol: malformed frame")

// ErrUnknownEvent is returned for well-formed frames naming no known event.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// Envelope is the wire frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client frame.
type Inbound struct {
	Event string
	data  gjson.Result
}

// Decode validates a client frame and returns its event name and payload.
func Decode(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return Inbound{}, ErrMalformed
	}
	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.String() == "" {
		return Inbound{}, errors.Wrap(ErrMalformed, "missing event name")
	}
	name := event.String()
	if !inbound[name] {
		return Inbound{}, errors.Wrapf(ErrUnknownEvent, "%q", name)
	}
	return Inbound{Event: name, data: gjson.GetBytes(raw, "data")}, nil
}

// ID returns a bare string payload such as a user or room id. An object
// payload is accepted too, reading the given field.
func (in Inbound) ID(field string) string {
	switch in.data.Type {
	case gjson.String:
		return in.data.String()
	case gjson.JSON:
		return in.data.Get(field).String()
	default:
		return ""
	}
}

// Bind unmarshals an object payload into v.
func (in Inbound) Bind(v any) error {
	if !in.data.IsObject() {
		return errors.Wrapf(ErrMalformed, "%s payload must be an object", in.Event)
	}
	if err := json.Unmarshal([]byte(in.data.Raw), v); err != nil {
		return errors.Wrapf(ErrMalformed, "%s payload: %v", in.Event, err)
	}
	return nil
}

// Encode builds a server frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
