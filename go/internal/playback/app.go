package playback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/rs/zerolog/log"
)

const maxTrackURILength = 512

// PlaybackRepository defines what the ledger needs from the repository
type PlaybackRepository interface {
	GetPlaybackState(ctx context.Context, partyID uuid.UUID) (*models.PlaybackState, error)
	UpdatePlaybackState(ctx context.Context, partyID uuid.UUID, patch Patch) (*models.PlaybackState, error)
}

// Ledger holds the durable last-known playback state of each party.
// The real-time relay never reads it; late joiners bootstrap from it.
type Ledger struct {
	repo PlaybackRepository
}

// NewLedger creates a new playback ledger
func NewLedger(repo PlaybackRepository) *Ledger {
	return &Ledger{
		repo: repo,
	}
}

// Get retrieves the party's playback snapshot
func (l *Ledger) Get(ctx context.Context, partyID uuid.UUID) (*models.PlaybackState, error) {
	state, err := l.repo.GetPlaybackState(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playback state: %w", err)
	}
	return state, nil
}

// Set applies a partial update to the party's playback snapshot
func (l *Ledger) Set(ctx context.Context, partyID uuid.UUID, patch Patch) (*models.PlaybackState, error) {
	if err := validatePatch(patch); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if patch.Empty() {
		return l.Get(ctx, partyID)
	}

	state, err := l.repo.UpdatePlaybackState(ctx, partyID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to set playback state: %w", err)
	}

	log.Debug().
		Str("party_id", partyID.String()).
		Str("track_uri", state.TrackURI).
		Int64("position_ms", state.PositionMs).
		Bool("is_playing", state.IsPlaying).
		Msg("playback state updated")
	return state, nil
}

func validatePatch(patch Patch) error {
	if patch.PositionMs != nil && *patch.PositionMs < 0 {
		return fmt.Errorf("%w: position_ms must not be negative", ErrInvalidPatch)
	}
	if patch.TrackURI != nil && len(*patch.TrackURI) > maxTrackURILength {
		return fmt.Errorf("%w: track_uri must be at most %d characters", ErrInvalidPatch, maxTrackURILength)
	}
	if patch.TrackMeta != nil && !json.Valid(patch.TrackMeta) {
		return fmt.Errorf("%w: track_meta must be valid JSON", ErrInvalidPatch)
	}
	return nil
}
