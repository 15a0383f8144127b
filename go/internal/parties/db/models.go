package db

import (
	"time"

	"github.com/google/uuid"
)

type Party struct {
	ID        uuid.UUID
	Code      string
	HostID    uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type PartyDevice struct {
	ID           uuid.UUID
	PartyID      uuid.UUID
	UserID       uuid.UUID
	Label        string
	GridX        int32
	GridY        int32
	AngleDeg     float64
	IsMainDevice bool
	Connected    bool
	LastSeen     time.Time
}
