package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PlaybackState is the durable last-known playback snapshot of a party
type PlaybackState struct {
	PartyID    uuid.UUID       `json:"party"`
	TrackURI   string          `json:"track_uri"`
	PositionMs int64           `json:"position_ms"`
	IsPlaying  bool            `json:"is_playing"`
	TrackMeta  json.RawMessage `json:"track_meta,omitempty"` // optional opaque track metadata
	UpdatedAt  time.Time       `json:"updated_at"`
}
