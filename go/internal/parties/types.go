package parties

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrPartyNotFound is returned when no party has the given code or id
	ErrPartyNotFound = errors.New("party not found")
	// ErrDeviceNotFound is returned when no device matches
	ErrDeviceNotFound = errors.New("device not found")
	// ErrCodeTaken is returned by the repository when a generated code collides
	ErrCodeTaken = errors.New("party code already in use")
	// ErrInvalidRequest wraps validation failures
	ErrInvalidRequest = errors.New("invalid request")
)

// CreatePartyRequest represents the data needed to create a new party
type CreatePartyRequest struct {
	Code   string    `json:"code"`
	HostID uuid.UUID `json:"host" validate:"required"`
	Name   string    `json:"name" validate:"required"`
	// MainDeviceLabel registers the host's device as the main device when set
	MainDeviceLabel string `json:"main_device_label,omitempty"`
}

// JoinPartyRequest represents a user joining a party with a device
type JoinPartyRequest struct {
	Code   string    `json:"code" validate:"required"`
	UserID uuid.UUID `json:"user" validate:"required"`
	Label  string    `json:"label"`
}

// DevicePatch is a partial device update. Nil fields are left unchanged.
type DevicePatch struct {
	Label        *string  `json:"label,omitempty"`
	GridX        *int     `json:"grid_x,omitempty"`
	GridY        *int     `json:"grid_y,omitempty"`
	AngleDeg     *float64 `json:"angle_deg,omitempty"`
	IsMainDevice *bool    `json:"is_main_device,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p DevicePatch) Empty() bool {
	return p.Label == nil && p.GridX == nil && p.GridY == nil && p.AngleDeg == nil && p.IsMainDevice == nil
}
