package models

import (
	"time"

	"github.com/google/uuid"
)

// Party represents a shared real-time playback session
type Party struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	HostID    uuid.UUID `json:"host"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
