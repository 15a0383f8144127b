package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type PlaybackState struct {
	PartyID    uuid.UUID
	TrackUri   string
	PositionMs int64
	IsPlaying  bool
	TrackMeta  pqtype.NullRawMessage
	UpdatedAt  time.Time
}
