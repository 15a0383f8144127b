package playback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/playback/db"
	"github.com/mcdev12/syncparty/go/internal/sqlutil"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetPlaybackState(ctx context.Context, partyID uuid.UUID) (db.PlaybackState, error)
	UpdatePlaybackState(ctx context.Context, arg db.UpdatePlaybackStateParams) (db.PlaybackState, error)
}

// Repository implements playback state data access
type Repository struct {
	queries Querier
}

// NewRepository creates a new playback repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// NewRepositoryFromDB creates a playback repository over a database handle
func NewRepositoryFromDB(database *sql.DB) *Repository {
	return NewRepository(db.New(database))
}

// GetPlaybackState retrieves the party's playback state
func (r *Repository) GetPlaybackState(ctx context.Context, partyID uuid.UUID) (*models.PlaybackState, error) {
	state, err := r.queries.GetPlaybackState(ctx, partyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaybackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playback state: %w", err)
	}
	return dbStateToModel(state), nil
}

// UpdatePlaybackState applies a partial update. The table trigger notifies listeners.
func (r *Repository) UpdatePlaybackState(ctx context.Context, partyID uuid.UUID, patch Patch) (*models.PlaybackState, error) {
	state, err := r.queries.UpdatePlaybackState(ctx, db.UpdatePlaybackStateParams{
		PartyID:      partyID,
		TrackUri:     sqlutil.ToSqlString(patch.TrackURI),
		PositionMs:   sqlutil.ToSqlInt64(patch.PositionMs),
		IsPlaying:    sqlutil.ToSqlBool(patch.IsPlaying),
		SetTrackMeta: patch.TrackMeta != nil,
		TrackMeta:    sqlutil.ToNullRawMessage(patch.TrackMeta),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaybackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update playback state: %w", err)
	}
	return dbStateToModel(state), nil
}

func dbStateToModel(s db.PlaybackState) *models.PlaybackState {
	return &models.PlaybackState{
		PartyID:    s.PartyID,
		TrackURI:   s.TrackUri,
		PositionMs: s.PositionMs,
		IsPlaying:  s.IsPlaying,
		TrackMeta:  sqlutil.FromNullRawMessage(s.TrackMeta),
		UpdatedAt:  s.UpdatedAt,
	}
}
