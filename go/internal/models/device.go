package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is one user's playback endpoint within a party.
// There is at most one device per (party, user) pair.
type Device struct {
	ID           uuid.UUID `json:"id"`
	PartyID      uuid.UUID `json:"party"`
	UserID       uuid.UUID `json:"user"`
	Label        string    `json:"label"`
	GridX        int       `json:"grid_x"`
	GridY        int       `json:"grid_y"`
	AngleDeg     float64   `json:"angle_deg"`
	IsMainDevice bool      `json:"is_main_device"`
	Connected    bool      `json:"connected"`
	LastSeen     time.Time `json:"last_seen"`
}
