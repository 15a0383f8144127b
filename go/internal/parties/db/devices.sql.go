package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const upsertDevice = `-- name: UpsertDevice :one
INSERT INTO party_devices (id, party_id, user_id, label, connected, last_seen)
VALUES ($1, $2, $3, $4, TRUE, now())
ON CONFLICT (party_id, user_id) DO UPDATE
SET label = EXCLUDED.label, connected = TRUE, last_seen = now()
RETURNING id, party_id, user_id, label, grid_x, grid_y, angle_deg, is_main_device, connected, last_seen
`

type UpsertDeviceParams struct {
	ID      uuid.UUID
	PartyID uuid.UUID
	UserID  uuid.UUID
	Label   string
}

func (q *Queries) UpsertDevice(ctx context.Context, arg UpsertDeviceParams) (PartyDevice, error) {
	row := q.db.QueryRowContext(ctx, upsertDevice,
		arg.ID,
		arg.PartyID,
		arg.UserID,
		arg.Label,
	)
	var i PartyDevice
	err := scanDevice(row, &i)
	return i, err
}

const createMainDevice = `-- name: CreateMainDevice :one
INSERT INTO party_devices (id, party_id, user_id, label, is_main_device, connected, last_seen)
VALUES ($1, $2, $3, $4, TRUE, FALSE, now())
RETURNING id, party_id, user_id, label, grid_x, grid_y, angle_deg, is_main_device, connected, last_seen
`

type CreateMainDeviceParams struct {
	ID      uuid.UUID
	PartyID uuid.UUID
	UserID  uuid.UUID
	Label   string
}

func (q *Queries) CreateMainDevice(ctx context.Context, arg CreateMainDeviceParams) (PartyDevice, error) {
	row := q.db.QueryRowContext(ctx, createMainDevice,
		arg.ID,
		arg.PartyID,
		arg.UserID,
		arg.Label,
	)
	var i PartyDevice
	err := scanDevice(row, &i)
	return i, err
}

const getDevice = `-- name: GetDevice :one
SELECT id, party_id, user_id, label, grid_x, grid_y, angle_deg, is_main_device, connected, last_seen
FROM party_devices
WHERE id = $1
`

func (q *Queries) GetDevice(ctx context.Context, id uuid.UUID) (PartyDevice, error) {
	row := q.db.QueryRowContext(ctx, getDevice, id)
	var i PartyDevice
	err := scanDevice(row, &i)
	return i, err
}

const listDevicesByParty = `-- name: ListDevicesByParty :many
SELECT id, party_id, user_id, label, grid_x, grid_y, angle_deg, is_main_device, connected, last_seen
FROM party_devices
WHERE party_id = $1
ORDER BY is_main_device DESC, last_seen ASC
`

func (q *Queries) ListDevicesByParty(ctx context.Context, partyID uuid.UUID) ([]PartyDevice, error) {
	rows, err := q.db.QueryContext(ctx, listDevicesByParty, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PartyDevice
	for rows.Next() {
		var i PartyDevice
		if err := scanDevice(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateDevice = `-- name: UpdateDevice :one
UPDATE party_devices
SET label          = COALESCE($2, label),
    grid_x         = COALESCE($3, grid_x),
    grid_y         = COALESCE($4, grid_y),
    angle_deg      = COALESCE($5, angle_deg),
    is_main_device = COALESCE($6, is_main_device),
    last_seen      = now()
WHERE id = $1
RETURNING id, party_id, user_id, label, grid_x, grid_y, angle_deg, is_main_device, connected, last_seen
`

type UpdateDeviceParams struct {
	ID           uuid.UUID
	Label        sql.NullString
	GridX        sql.NullInt32
	GridY        sql.NullInt32
	AngleDeg     sql.NullFloat64
	IsMainDevice sql.NullBool
}

func (q *Queries) UpdateDevice(ctx context.Context, arg UpdateDeviceParams) (PartyDevice, error) {
	row := q.db.QueryRowContext(ctx, updateDevice,
		arg.ID,
		arg.Label,
		arg.GridX,
		arg.GridY,
		arg.AngleDeg,
		arg.IsMainDevice,
	)
	var i PartyDevice
	err := scanDevice(row, &i)
	return i, err
}

const clearMainDevice = `-- name: ClearMainDevice :exec
UPDATE party_devices SET is_main_device = FALSE
WHERE party_id = $1 AND id <> $2 AND is_main_device
`

type ClearMainDeviceParams struct {
	PartyID uuid.UUID
	KeepID  uuid.UUID
}

func (q *Queries) ClearMainDevice(ctx context.Context, arg ClearMainDeviceParams) error {
	_, err := q.db.ExecContext(ctx, clearMainDevice, arg.PartyID, arg.KeepID)
	return err
}

const setDeviceConnected = `-- name: SetDeviceConnected :execrows
UPDATE party_devices SET connected = $2, last_seen = now()
WHERE id = $1
`

type SetDeviceConnectedParams struct {
	ID        uuid.UUID
	Connected bool
}

func (q *Queries) SetDeviceConnected(ctx context.Context, arg SetDeviceConnectedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setDeviceConnected, arg.ID, arg.Connected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const disconnectUserDevice = `-- name: DisconnectUserDevice :execrows
UPDATE party_devices SET connected = FALSE, last_seen = now()
WHERE party_id = $1 AND user_id = $2
`

type DisconnectUserDeviceParams struct {
	PartyID uuid.UUID
	UserID  uuid.UUID
}

func (q *Queries) DisconnectUserDevice(ctx context.Context, arg DisconnectUserDeviceParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, disconnectUserDevice, arg.PartyID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner, i *PartyDevice) error {
	return row.Scan(
		&i.ID,
		&i.PartyID,
		&i.UserID,
		&i.Label,
		&i.GridX,
		&i.GridY,
		&i.AngleDeg,
		&i.IsMainDevice,
		&i.Connected,
		&i.LastSeen,
	)
}
