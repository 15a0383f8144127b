package db

import (
	"context"

	"github.com/google/uuid"
)

const createParty = `-- name: CreateParty :one
INSERT INTO parties (id, code, host_id, name, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id, code, host_id, name, is_active, created_at
`

type CreatePartyParams struct {
	ID     uuid.UUID
	Code   string
	HostID uuid.UUID
	Name   string
}

func (q *Queries) CreateParty(ctx context.Context, arg CreatePartyParams) (Party, error) {
	row := q.db.QueryRowContext(ctx, createParty,
		arg.ID,
		arg.Code,
		arg.HostID,
		arg.Name,
	)
	var i Party
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.HostID,
		&i.Name,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createPlaybackState = `-- name: CreatePlaybackState :exec
INSERT INTO playback_states (party_id) VALUES ($1)
`

func (q *Queries) CreatePlaybackState(ctx context.Context, partyID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, createPlaybackState, partyID)
	return err
}

const getParty = `-- name: GetParty :one
SELECT id, code, host_id, name, is_active, created_at FROM parties
WHERE id = $1
`

func (q *Queries) GetParty(ctx context.Context, id uuid.UUID) (Party, error) {
	row := q.db.QueryRowContext(ctx, getParty, id)
	var i Party
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.HostID,
		&i.Name,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getPartyByCode = `-- name: GetPartyByCode :one
SELECT id, code, host_id, name, is_active, created_at FROM parties
WHERE code = upper($1)
`

func (q *Queries) GetPartyByCode(ctx context.Context, code string) (Party, error) {
	row := q.db.QueryRowContext(ctx, getPartyByCode, code)
	var i Party
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.HostID,
		&i.Name,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const listPartiesByHost = `-- name: ListPartiesByHost :many
SELECT id, code, host_id, name, is_active, created_at FROM parties
WHERE host_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListPartiesByHost(ctx context.Context, hostID uuid.UUID) ([]Party, error) {
	rows, err := q.db.QueryContext(ctx, listPartiesByHost, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Party
	for rows.Next() {
		var i Party
		if err := rows.Scan(
			&i.ID,
			&i.Code,
			&i.HostID,
			&i.Name,
			&i.IsActive,
			&i.CreatedAt,
		); err != nil {
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

const setPartyActive = `-- name: SetPartyActive :execrows
UPDATE parties SET is_active = $2 WHERE id = $1
`

type SetPartyActiveParams struct {
	ID       uuid.UUID
	IsActive bool
}

func (q *Queries) SetPartyActive(ctx context.Context, arg SetPartyActiveParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setPartyActive, arg.ID, arg.IsActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteParty = `-- name: DeleteParty :execrows
DELETE FROM parties WHERE id = $1
`

func (q *Queries) DeleteParty(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteParty, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
