package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const getPlaybackState = `-- name: GetPlaybackState :one
SELECT party_id, track_uri, position_ms, is_playing, track_meta, updated_at
FROM playback_states
WHERE party_id = $1
`

func (q *Queries) GetPlaybackState(ctx context.Context, partyID uuid.UUID) (PlaybackState, error) {
	row := q.db.QueryRowContext(ctx, getPlaybackState, partyID)
	var i PlaybackState
	err := row.Scan(
		&i.PartyID,
		&i.TrackUri,
		&i.PositionMs,
		&i.IsPlaying,
		&i.TrackMeta,
		&i.UpdatedAt,
	)
	return i, err
}

const updatePlaybackState = `-- name: UpdatePlaybackState :one
UPDATE playback_states
SET track_uri   = COALESCE($2, track_uri),
    position_ms = COALESCE($3, position_ms),
    is_playing  = COALESCE($4, is_playing),
    track_meta  = CASE WHEN $5::boolean THEN $6::jsonb ELSE track_meta END,
    updated_at  = now()
WHERE party_id = $1
RETURNING party_id, track_uri, position_ms, is_playing, track_meta, updated_at
`

type UpdatePlaybackStateParams struct {
	PartyID      uuid.UUID
	TrackUri     sql.NullString
	PositionMs   sql.NullInt64
	IsPlaying    sql.NullBool
	SetTrackMeta bool
	TrackMeta    pqtype.NullRawMessage
}

func (q *Queries) UpdatePlaybackState(ctx context.Context, arg UpdatePlaybackStateParams) (PlaybackState, error) {
	row := q.db.QueryRowContext(ctx, updatePlaybackState,
		arg.PartyID,
		arg.TrackUri,
		arg.PositionMs,
		arg.IsPlaying,
		arg.SetTrackMeta,
		arg.TrackMeta,
	)
	var i PlaybackState
	err := row.Scan(
		&i.PartyID,
		&i.TrackUri,
		&i.PositionMs,
		&i.IsPlaying,
		&i.TrackMeta,
		&i.UpdatedAt,
	)
	return i, err
}
