package parties

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/parties/db"
	"github.com/mcdev12/syncparty/go/internal/sqlutil"
)

const uniqueViolation = pq.ErrorCode("23505")

// Repository implements party directory data access on Postgres
type Repository struct {
	db      *sql.DB
	queries *db.Queries
}

// NewRepository creates a new parties repository
func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		db:      database,
		queries: db.New(database),
	}
}

// CreateParty inserts the party, its playback state row and optionally the host's
// main device in one transaction
func (r *Repository) CreateParty(ctx context.Context, req CreatePartyRequest) (*models.Party, error) {
	var party db.Party
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		var err error
		party, err = q.CreateParty(ctx, db.CreatePartyParams{
			ID:     uuid.New(),
			Code:   req.Code,
			HostID: req.HostID,
			Name:   req.Name,
		})
		if err != nil {
			return err
		}
		if err := q.CreatePlaybackState(ctx, party.ID); err != nil {
			return fmt.Errorf("create playback state: %w", err)
		}
		if req.MainDeviceLabel != "" {
			if _, err := q.CreateMainDevice(ctx, db.CreateMainDeviceParams{
				ID:      uuid.New(),
				PartyID: party.ID,
				UserID:  req.HostID,
				Label:   req.MainDeviceLabel,
			}); err != nil {
				return fmt.Errorf("create main device: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "parties_code_key" {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("failed to create party: %w", err)
	}

	return dbPartyToModel(party), nil
}

// GetParty retrieves a party by ID
func (r *Repository) GetParty(ctx context.Context, id uuid.UUID) (*models.Party, error) {
	party, err := r.queries.GetParty(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return dbPartyToModel(party), nil
}

// GetPartyByCode retrieves a party by its join code
func (r *Repository) GetPartyByCode(ctx context.Context, code string) (*models.Party, error) {
	party, err := r.queries.GetPartyByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party by code: %w", err)
	}
	return dbPartyToModel(party), nil
}

// ListPartiesByHost retrieves parties hosted by a user, newest first
func (r *Repository) ListPartiesByHost(ctx context.Context, hostID uuid.UUID) ([]*models.Party, error) {
	rows, err := r.queries.ListPartiesByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	result := make([]*models.Party, 0, len(rows))
	for _, p := range rows {
		result = append(result, dbPartyToModel(p))
	}
	return result, nil
}

// SetPartyActive opens or closes a party
func (r *Repository) SetPartyActive(ctx context.Context, id uuid.UUID, active bool) error {
	n, err := r.queries.SetPartyActive(ctx, db.SetPartyActiveParams{ID: id, IsActive: active})
	if err != nil {
		return fmt.Errorf("failed to set party active: %w", err)
	}
	if n == 0 {
		return ErrPartyNotFound
	}
	return nil
}

// DeleteParty deletes a party. Devices and playback state cascade.
func (r *Repository) DeleteParty(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteParty(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete party: %w", err)
	}
	if n == 0 {
		return ErrPartyNotFound
	}
	return nil
}

// UpsertDevice registers the user's device in the party, or reconnects it
func (r *Repository) UpsertDevice(ctx context.Context, partyID, userID uuid.UUID, label string) (*models.Device, error) {
	device, err := r.queries.UpsertDevice(ctx, db.UpsertDeviceParams{
		ID:      uuid.New(),
		PartyID: partyID,
		UserID:  userID,
		Label:   label,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}
	return dbDeviceToModel(device), nil
}

// GetDevice retrieves a device by ID
func (r *Repository) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	device, err := r.queries.GetDevice(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return dbDeviceToModel(device), nil
}

// ListDevices retrieves every device registered in a party
func (r *Repository) ListDevices(ctx context.Context, partyID uuid.UUID) ([]*models.Device, error) {
	rows, err := r.queries.ListDevicesByParty(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	result := make([]*models.Device, 0, len(rows))
	for _, d := range rows {
		result = append(result, dbDeviceToModel(d))
	}
	return result, nil
}

// UpdateDevice applies a partial update. Promoting a device to main demotes
// the party's previous main device in the same transaction.
func (r *Repository) UpdateDevice(ctx context.Context, deviceID uuid.UUID, patch DevicePatch) (*models.Device, error) {
	var device db.PartyDevice
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		var err error
		device, err = q.UpdateDevice(ctx, db.UpdateDeviceParams{
			ID:           deviceID,
			Label:        sqlutil.ToSqlString(patch.Label),
			GridX:        sqlutil.ToSqlInt32(patch.GridX),
			GridY:        sqlutil.ToSqlInt32(patch.GridY),
			AngleDeg:     sqlutil.ToSqlFloat64(patch.AngleDeg),
			IsMainDevice: sqlutil.ToSqlBool(patch.IsMainDevice),
		})
		if err != nil {
			return err
		}
		if device.IsMainDevice && patch.IsMainDevice != nil {
			return q.ClearMainDevice(ctx, db.ClearMainDeviceParams{
				PartyID: device.PartyID,
				KeepID:  device.ID,
			})
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	return dbDeviceToModel(device), nil
}

// SetDeviceConnected records device connectivity
func (r *Repository) SetDeviceConnected(ctx context.Context, deviceID uuid.UUID, connected bool) error {
	n, err := r.queries.SetDeviceConnected(ctx, db.SetDeviceConnectedParams{ID: deviceID, Connected: connected})
	if err != nil {
		return fmt.Errorf("failed to set device connected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// DisconnectUserDevice marks the user's device in the party as disconnected
func (r *Repository) DisconnectUserDevice(ctx context.Context, partyID, userID uuid.UUID) error {
	n, err := r.queries.DisconnectUserDevice(ctx, db.DisconnectUserDeviceParams{PartyID: partyID, UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to disconnect device: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func dbPartyToModel(p db.Party) *models.Party {
	return &models.Party{
		ID:        p.ID,
		Code:      p.Code,
		HostID:    p.HostID,
		Name:      p.Name,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

func dbDeviceToModel(d db.PartyDevice) *models.Device {
	return &models.Device{
		ID:           d.ID,
		PartyID:      d.PartyID,
		UserID:       d.UserID,
		Label:        d.Label,
		GridX:        int(d.GridX),
		GridY:        int(d.GridY),
		AngleDeg:     d.AngleDeg,
		IsMainDevice: d.IsMainDevice,
		Connected:    d.Connected,
		LastSeen:     d.LastSeen,
	}
}
