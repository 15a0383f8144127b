package events

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed body of a relayed event
type Payload interface {
	EventType() Type
}

// PlayPayload starts playback, optionally at an absolute server time.
// Clients send fractional milliseconds and numeric or string track ids.
type PlayPayload struct {
	TrackID        json.RawMessage `json:"trackId,omitempty"`
	SeekMs         *float64        `json:"seekMs,omitempty"`
	StartAtEpochMs *float64        `json:"startAtEpochMs,omitempty"`
}

// PausePayload stops playback
type PausePayload struct {
	PositionMs *float64 `json:"positionMs,omitempty"`
}

// SeekPayload moves the playback position
type SeekPayload struct {
	SeekMs         *float64 `json:"seekMs,omitempty"`
	StartAtEpochMs *float64 `json:"startAtEpochMs,omitempty"`
}

// TrackPayload selects a new track
type TrackPayload struct {
	URL     string          `json:"url,omitempty"`
	TrackID json.RawMessage `json:"trackId,omitempty"`
}

// RingPayload asks a device to identify itself
type RingPayload struct {
	DeviceID json.RawMessage `json:"deviceId,omitempty"`
}

// DeviceUpdatePayload carries spatial metadata for panning
type DeviceUpdatePayload struct {
	ID           json.RawMessage `json:"id,omitempty"`
	Label        *string         `json:"label,omitempty"`
	GridX        *int            `json:"grid_x,omitempty"`
	GridY        *int            `json:"grid_y,omitempty"`
	AngleDeg     *float64        `json:"angle_deg,omitempty"`
	IsMainDevice *bool           `json:"is_main_device,omitempty"`
}

// PlaybackStatePayload mirrors the ledger snapshot
type PlaybackStatePayload struct {
	TrackURI   string          `json:"track_uri"`
	PositionMs int64           `json:"position_ms"`
	IsPlaying  bool            `json:"is_playing"`
	TrackMeta  json.RawMessage `json:"track_meta,omitempty"`
	UpdatedAt  int64           `json:"updated_at_ms"`
}

// Opaque is the passthrough payload for event kinds without a typed shape
type Opaque struct {
	Kind Type
	Raw  json.RawMessage
}

func (PlayPayload) EventType() Type          { return TypePlay }
func (PausePayload) EventType() Type         { return TypePause }
func (SeekPayload) EventType() Type          { return TypeSeek }
func (TrackPayload) EventType() Type         { return TypeTrack }
func (RingPayload) EventType() Type          { return TypeRing }
func (DeviceUpdatePayload) EventType() Type  { return TypeDeviceUpdate }
func (PlaybackStatePayload) EventType() Type { return TypePlaybackState }
func (o Opaque) EventType() Type             { return o.Kind }

// ParsePayload parses event data into the appropriate payload struct. Data
// that does not fit the typed shape comes back as Opaque; the raw bytes are
// what gets relayed either way.
func ParsePayload(event *Event) Payload {
	var (
		payload Payload
		err     error
	)
	switch event.Name {
	case TypePlay:
		payload, err = decode[PlayPayload](event)
	case TypePause:
		payload, err = decode[PausePayload](event)
	case TypeSeek:
		payload, err = decode[SeekPayload](event)
	case TypeTrack:
		payload, err = decode[TrackPayload](event)
	case TypeRing:
		payload, err = decode[RingPayload](event)
	case TypeDeviceUpdate:
		payload, err = decode[DeviceUpdatePayload](event)
	case TypePlaybackState:
		payload, err = decode[PlaybackStatePayload](event)
	default:
		return Opaque{Kind: event.Name, Raw: event.Data}
	}
	if err != nil {
		return Opaque{Kind: event.Name, Raw: event.Data}
	}
	return payload
}

func decode[T Payload](event *Event) (Payload, error) {
	var payload T
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, event.Name, err)
	}
	return payload, nil
}

// MarshalEvent builds an event from a typed payload
func MarshalEvent(payload Payload) (*Event, error) {
	if o, ok := payload.(Opaque); ok {
		return NewEvent(o.Kind, o.Raw), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", payload.EventType(), err)
	}
	return NewEvent(payload.EventType(), data), nil
}
