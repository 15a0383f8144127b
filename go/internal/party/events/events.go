package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies an inbound frame type or an outbound event name
type Type string

const (
	TypePing      Type = "ping"
	TypePong      Type = "pong"
	TypeTimeSync  Type = "time_sync"
	TypeConnected Type = "connected"

	TypeDeviceUpdate Type = "device_update"
	TypePlay         Type = "play"
	TypePause        Type = "pause"
	TypeSeek         Type = "seek"
	TypeTrack        Type = "track"
	TypeRing         Type = "ring"

	// TypePlaybackState is server originated, sent when the ledger snapshot changes
	TypePlaybackState Type = "playback_state"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
)

var emptyObject = json.RawMessage(`{}`)

// IsRelayed reports whether frames of this type are fanned out to the party
func (t Type) IsRelayed() bool {
	switch t {
	case TypeDeviceUpdate, TypePlay, TypePause, TypeSeek, TypeTrack, TypeRing:
		return true
	default:
		return false
	}
}

// Inbound is a decoded client frame: {type, data?}
type Inbound struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// ClientSentAt is only meaningful for time_sync and is echoed verbatim
	ClientSentAt json.RawMessage `json:"clientSentAt,omitempty"`
}

// Decode parses a raw websocket frame into an Inbound envelope
func Decode(frame []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if in.Type == "" {
		return nil, ErrMissingType
	}
	return &in, nil
}

// Event is an outbound relayed frame: {event, data}
type Event struct {
	Name Type            `json:"event"`
	Data json.RawMessage `json:"data"`
}

// NewEvent builds an outbound event. Missing data becomes an empty object; an
// explicit null is kept.
func NewEvent(name Type, data json.RawMessage) *Event {
	if len(bytes.TrimSpace(data)) == 0 {
		data = emptyObject
	}
	return &Event{Name: name, Data: data}
}

// FromInbound converts a relayable inbound frame into its outbound event. The
// data is opaque and relayed as sent, whatever its shape.
func FromInbound(in *Inbound) (*Event, error) {
	if !in.Type.IsRelayed() {
		return nil, fmt.Errorf("type %q is not relayed", in.Type)
	}
	return NewEvent(in.Type, in.Data), nil
}

// Pong is the reply to a ping
type Pong struct {
	Type Type `json:"type"`
}

// NewPong returns the pong frame
func NewPong() Pong {
	return Pong{Type: TypePong}
}

// TimeSyncReply is the reply to a time_sync request. ClientSentAt is echoed
// unchanged; a missing value is encoded as null.
type TimeSyncReply struct {
	Event        Type            `json:"event"`
	ServerNowMs  int64           `json:"serverNowMs"`
	ClientSentAt json.RawMessage `json:"clientSentAt"`
}

// Connected acknowledges a successful join
type Connected struct {
	Type         Type   `json:"type"`
	ConnectionID string `json:"connectionId"`
	Party        string `json:"party"`
	ServerNowMs  int64  `json:"serverNowMs"`
}
