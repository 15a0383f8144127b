package parties

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	maxCodeAttempts = 5
	maxLabelLength  = 100
	maxNameLength   = 100
)

// PartiesRepository defines what the app layer needs from the repository
type PartiesRepository interface {
	CreateParty(ctx context.Context, req CreatePartyRequest) (*models.Party, error)
	GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error)
	GetPartyByCode(ctx context.Context, code string) (*models.Party, error)
	ListPartiesByHost(ctx context.Context, hostID uuid.UUID) ([]*models.Party, error)
	SetPartyActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteParty(ctx context.Context, id uuid.UUID) error

	UpsertDevice(ctx context.Context, partyID, userID uuid.UUID, label string) (*models.Device, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	ListDevices(ctx context.Context, partyID uuid.UUID) ([]*models.Device, error)
	UpdateDevice(ctx context.Context, deviceID uuid.UUID, patch DevicePatch) (*models.Device, error)
	SetDeviceConnected(ctx context.Context, deviceID uuid.UUID, connected bool) error
	DisconnectUserDevice(ctx context.Context, partyID, userID uuid.UUID) error
}

// App handles party directory business logic
type App struct {
	repo    PartiesRepository
	newCode func() (string, error)
}

// NewApp creates a new parties App
func NewApp(repo PartiesRepository) *App {
	return &App{
		repo:    repo,
		newCode: GenerateCode,
	}
}

// GenerateCode returns a fresh 8 character join code from [A-Z0-9]
func GenerateCode() (string, error) {
	return gonanoid.Generate(codeAlphabet, codeLength)
}

// NormalizeCode canonicalises a join code. Codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the shape of a join code
func ValidCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}

// CreateParty creates a party with a fresh code and its playback state
func (a *App) CreateParty(ctx context.Context, hostID uuid.UUID, name string) (*models.Party, error) {
	return a.CreatePartyWithRequest(ctx, CreatePartyRequest{HostID: hostID, Name: name})
}

// CreatePartyWithRequest creates a party, retrying code generation on collision
func (a *App) CreatePartyWithRequest(ctx context.Context, req CreatePartyRequest) (*models.Party, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := a.validateCreatePartyRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := a.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate party code: %w", err)
		}
		req.Code = code

		party, err := a.repo.CreateParty(ctx, req)
		if errors.Is(err, ErrCodeTaken) {
			log.Debug().Str("code", code).Int("attempt", attempt).Msg("party code collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create party: %w", err)
		}

		log.Info().
			Str("party_id", party.ID.String()).
			Str("code", party.Code).
			Str("host", party.HostID.String()).
			Msg("created party")
		return party, nil
	}
	return nil, fmt.Errorf("failed to create party: %w after %d attempts", ErrCodeTaken, maxCodeAttempts)
}

// ResolveParty looks a party up by code, case-insensitively
func (a *App) ResolveParty(ctx context.Context, code string) (*models.Party, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrPartyNotFound
	}
	party, err := a.repo.GetPartyByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve party %s: %w", code, err)
	}
	return party, nil
}

// GetParty retrieves a party by ID
func (a *App) GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	party, err := a.repo.GetParty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return party, nil
}

// ListHostedParties retrieves the parties a user hosts
func (a *App) ListHostedParties(ctx context.Context, hostID uuid.UUID) ([]*models.Party, error) {
	parties, err := a.repo.ListPartiesByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosted parties: %w", err)
	}
	return parties, nil
}

// JoinParty registers the user's device in the party and marks it connected.
// Joining twice returns the same device.
func (a *App) JoinParty(ctx context.Context, code string, userID uuid.UUID, label string) (*models.Device, error) {
	label = strings.TrimSpace(label)
	if err := a.validateJoin(userID, label); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	party, err := a.ResolveParty(ctx, code)
	if err != nil {
		return nil, err
	}
	if !party.IsActive {
		return nil, fmt.Errorf("party %s is not active: %w", party.Code, ErrInvalidRequest)
	}

	device, err := a.repo.UpsertDevice(ctx, party.ID, userID, label)
	if err != nil {
		return nil, fmt.Errorf("failed to join party: %w", err)
	}

	log.Info().
		Str("party", party.Code).
		Str("user", userID.String()).
		Str("device_id", device.ID.String()).
		Msg("device joined party")
	return device, nil
}

// LeaveParty marks the user's device in the party as disconnected
func (a *App) LeaveParty(ctx context.Context, partyID, userID uuid.UUID) error {
	if err := a.repo.DisconnectUserDevice(ctx, partyID, userID); err != nil {
		return fmt.Errorf("failed to leave party: %w", err)
	}
	return nil
}

// UpdateDevice applies a partial update to the user's device in the party
func (a *App) UpdateDevice(ctx context.Context, partyID, userID uuid.UUID, patch DevicePatch) (*models.Device, error) {
	if err := a.validateDevicePatch(patch); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	device, err := a.findUserDevice(ctx, partyID, userID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return device, nil
	}

	updated, err := a.repo.UpdateDevice(ctx, device.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	return updated, nil
}

// ListDevices retrieves every device registered in the party
func (a *App) ListDevices(ctx context.Context, partyID uuid.UUID) ([]*models.Device, error) {
	devices, err := a.repo.ListDevices(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// SetDeviceConnected records device connectivity
func (a *App) SetDeviceConnected(ctx context.Context, deviceID uuid.UUID, connected bool) error {
	if err := a.repo.SetDeviceConnected(ctx, deviceID, connected); err != nil {
		return fmt.Errorf("failed to set device connectivity: %w", err)
	}
	return nil
}

// SetActive opens or closes a party
func (a *App) SetActive(ctx context.Context, partyID uuid.UUID, active bool) error {
	if err := a.repo.SetPartyActive(ctx, partyID, active); err != nil {
		return fmt.Errorf("failed to set party active: %w", err)
	}
	log.Info().Str("party_id", partyID.String()).Bool("active", active).Msg("party activity changed")
	return nil
}

// DeleteParty deletes a party with its devices and playback state
func (a *App) DeleteParty(ctx context.Context, partyID uuid.UUID) error {
	if err := a.repo.DeleteParty(ctx, partyID); err != nil {
		return fmt.Errorf("failed to delete party: %w", err)
	}
	log.Info().Str("party_id", partyID.String()).Msg("deleted party")
	return nil
}

func (a *App) findUserDevice(ctx context.Context, partyID, userID uuid.UUID) (*models.Device, error) {
	devices, err := a.repo.ListDevices(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (a *App) validateCreatePartyRequest(req CreatePartyRequest) error {
	if req.HostID == uuid.Nil {
		return fmt.Errorf("%w: host is required", ErrInvalidRequest)
	}
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if len(req.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidRequest, maxNameLength)
	}
	if len(req.MainDeviceLabel) > maxLabelLength {
		return fmt.Errorf("%w: label must be at most %d characters", ErrInvalidRequest, maxLabelLength)
	}
	return nil
}

func (a *App) validateJoin(userID uuid.UUID, label string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	if len(label) > maxLabelLength {
		return fmt.Errorf("%w: label must be at most %d characters", ErrInvalidRequest, maxLabelLength)
	}
	return nil
}

func (a *App) validateDevicePatch(patch DevicePatch) error {
	if patch.Label != nil && len(*patch.Label) > maxLabelLength {
		return fmt.Errorf("%w: label must be at most %d characters", ErrInvalidRequest, maxLabelLength)
	}
	if patch.AngleDeg != nil && (math.IsNaN(*patch.AngleDeg) || math.IsInf(*patch.AngleDeg, 0)) {
		return fmt.Errorf("%w: angle_deg must be finite", ErrInvalidRequest)
	}
	if patch.GridX != nil && (*patch.GridX < math.MinInt32 || *patch.GridX > math.MaxInt32) {
		return fmt.Errorf("%w: grid_x out of range", ErrInvalidRequest)
	}
	if patch.GridY != nil && (*patch.GridY < math.MinInt32 || *patch.GridY > math.MaxInt32) {
		return fmt.Errorf("%w: grid_y out of range", ErrInvalidRequest)
	}
	return nil
}
