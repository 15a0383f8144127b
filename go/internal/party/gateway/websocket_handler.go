package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/parties"
	"github.com/rs/zerolog/log"
)

// PartyResolver looks party codes up in the party directory
type PartyResolver interface {
	ResolveParty(ctx context.Context, code string) (*models.Party, error)
}

// WebSocketHandler handles WebSocket upgrade requests for party connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	resolver          PartyResolver
	requireKnown      bool
}

// NewWebSocketHandler creates a new WebSocket handler. When requireKnown is set,
// connections to codes the resolver does not know are refused; otherwise any
// code forms a live group.
func NewWebSocketHandler(cm *ConnectionManager, resolver PartyResolver, requireKnown bool) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		resolver:          resolver,
		requireKnown:      requireKnown && resolver != nil,
	}
}

// NormalizeCode canonicalises a party code. Codes are case-insensitive.
func NormalizeCode(code string) string {
	return parties.NormalizeCode(code)
}

// HandlePartyConnection handles GET /ws/party/{code}/
func (h *WebSocketHandler) HandlePartyConnection(w http.ResponseWriter, r *http.Request) {
	code := NormalizeCode(r.PathValue("code"))
	if code == "" {
		http.Error(w, "party code is required", http.StatusBadRequest)
		return
	}

	var deviceID *uuid.UUID
	if raw := r.URL.Query().Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid device_id format", http.StatusBadRequest)
			return
		}
		deviceID = &id
	}

	if h.requireKnown {
		party, err := h.resolver.ResolveParty(r.Context(), code)
		switch {
		case errors.Is(err, parties.ErrPartyNotFound):
			http.Error(w, "party not found", http.StatusNotFound)
			return
		case err != nil:
			log.Error().Err(err).Str("party", code).Msg("failed to resolve party")
			http.Error(w, "failed to resolve party", http.StatusInternalServerError)
			return
		case !party.IsActive:
			http.Error(w, "party is not active", http.StatusGone)
			return
		}
	}

	// On failure the upgrader has already written an HTTP error response
	if err := h.connectionManager.UpgradeConnection(w, r, code, deviceID); err != nil {
		log.Error().
			Err(err).
			Str("party", code).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/party/{code}", h.HandlePartyConnection)
	mux.HandleFunc("GET /ws/party/{code}/{$}", h.HandlePartyConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
