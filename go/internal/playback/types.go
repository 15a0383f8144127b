package playback

import (
	"encoding/json"
	"errors"
)

var (
	// ErrPlaybackNotFound is returned when the party has no playback state
	ErrPlaybackNotFound = errors.New("playback state not found")
	// ErrInvalidPatch wraps validation failures
	ErrInvalidPatch = errors.New("invalid playback patch")
)

// Patch is a partial playback state update. Nil fields are left unchanged.
// A TrackMeta of JSON null clears the stored metadata.
type Patch struct {
	TrackURI   *string         `json:"track_uri,omitempty"`
	PositionMs *int64          `json:"position_ms,omitempty"`
	IsPlaying  *bool           `json:"is_playing,omitempty"`
	TrackMeta  json.RawMessage `json:"track_meta,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.TrackURI == nil && p.PositionMs == nil && p.IsPlaying == nil && p.TrackMeta == nil
}
