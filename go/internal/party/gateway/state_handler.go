package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/parties"
	"github.com/mcdev12/syncparty/go/internal/playback"
	"github.com/rs/zerolog/log"
)

// StateProvider is what the snapshot endpoint needs from the party directory
type StateProvider interface {
	PartyResolver
	ListDevices(ctx context.Context, partyID uuid.UUID) ([]*models.Device, error)
}

// PlaybackReader reads the durable playback snapshot
type PlaybackReader interface {
	Get(ctx context.Context, partyID uuid.UUID) (*models.PlaybackState, error)
}

// PartyStateResponse is the non-real-time snapshot a late joiner bootstraps from
type PartyStateResponse struct {
	Party       *models.Party         `json:"party"`
	Devices     []*models.Device      `json:"devices"`
	Playback    *models.PlaybackState `json:"playback"`
	ServerNowMs int64                 `json:"serverNowMs"`
	LiveMembers int                   `json:"live_members"`
}

// StateHandler handles HTTP requests for party state
type StateHandler struct {
	provider StateProvider
	playback PlaybackReader
	registry *Registry
	clock    *ClockEngine
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider, playback PlaybackReader, registry *Registry, clock *ClockEngine) *StateHandler {
	return &StateHandler{
		provider: provider,
		playback: playback,
		registry: registry,
		clock:    clock,
	}
}

// HandleGetPartyState handles GET /api/parties/{code}/state
func (h *StateHandler) HandleGetPartyState(w http.ResponseWriter, r *http.Request) {
	code := NormalizeCode(r.PathValue("code"))
	if code == "" {
		http.Error(w, "party code is required", http.StatusBadRequest)
		return
	}

	party, err := h.provider.ResolveParty(r.Context(), code)
	if errors.Is(err, parties.ErrPartyNotFound) {
		http.Error(w, "party not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("party", code).Msg("failed to resolve party")
		http.Error(w, "failed to get party state", http.StatusInternalServerError)
		return
	}

	devices, err := h.provider.ListDevices(r.Context(), party.ID)
	if err != nil {
		log.Error().Err(err).Str("party", code).Msg("failed to list devices")
		http.Error(w, "failed to get party state", http.StatusInternalServerError)
		return
	}

	state, err := h.playback.Get(r.Context(), party.ID)
	if err != nil && !errors.Is(err, playback.ErrPlaybackNotFound) {
		log.Error().Err(err).Str("party", code).Msg("failed to get playback state")
		http.Error(w, "failed to get party state", http.StatusInternalServerError)
		return
	}

	response := PartyStateResponse{
		Party:       party,
		Devices:     devices,
		Playback:    state,
		ServerNowMs: h.clock.NowMs(),
		LiveMembers: len(h.registry.MembersOf(code)),
	}
	if response.Devices == nil {
		response.Devices = []*models.Device{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode party state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/parties/{code}/state", h.HandleGetPartyState)
}
