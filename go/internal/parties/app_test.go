package parties

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory PartiesRepository
type fakeRepo struct {
	mu      sync.Mutex
	parties map[uuid.UUID]*models.Party
	devices map[uuid.UUID]*models.Device
	creates int
	taken   map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		parties: make(map[uuid.UUID]*models.Party),
		devices: make(map[uuid.UUID]*models.Device),
		taken:   make(map[string]bool),
	}
}

func (f *fakeRepo) CreateParty(_ context.Context, req CreatePartyRequest) (*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.taken[req.Code] {
		return nil, ErrCodeTaken
	}
	for _, p := range f.parties {
		if p.Code == req.Code {
			return nil, ErrCodeTaken
		}
	}
	p := &models.Party{ID: uuid.New(), Code: req.Code, HostID: req.HostID, Name: req.Name, IsActive: true, CreatedAt: time.Now()}
	f.parties[p.ID] = p
	if req.MainDeviceLabel != "" {
		d := &models.Device{ID: uuid.New(), PartyID: p.ID, UserID: req.HostID, Label: req.MainDeviceLabel, IsMainDevice: true}
		f.devices[d.ID] = d
	}
	return p, nil
}

func (f *fakeRepo) GetParty(_ context.Context, id uuid.UUID) (*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.parties[id]; ok {
		return p, nil
	}
	return nil, ErrPartyNotFound
}

func (f *fakeRepo) GetPartyByCode(_ context.Context, code string) (*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.parties {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, ErrPartyNotFound
}

func (f *fakeRepo) ListPartiesByHost(_ context.Context, hostID uuid.UUID) ([]*models.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Party
	for _, p := range f.parties {
		if p.HostID == hostID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetPartyActive(_ context.Context, id uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.parties[id]
	if !ok {
		return ErrPartyNotFound
	}
	p.IsActive = active
	return nil
}

func (f *fakeRepo) DeleteParty(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.parties[id]; !ok {
		return ErrPartyNotFound
	}
	delete(f.parties, id)
	for did, d := range f.devices {
		if d.PartyID == id {
			delete(f.devices, did)
		}
	}
	return nil
}

func (f *fakeRepo) UpsertDevice(_ context.Context, partyID, userID uuid.UUID, label string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.PartyID == partyID && d.UserID == userID {
			d.Label = label
			d.Connected = true
			return d, nil
		}
	}
	d := &models.Device{ID: uuid.New(), PartyID: partyID, UserID: userID, Label: label, Connected: true}
	f.devices[d.ID] = d
	return d, nil
}

func (f *fakeRepo) GetDevice(_ context.Context, id uuid.UUID) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, ErrDeviceNotFound
}

func (f *fakeRepo) ListDevices(_ context.Context, partyID uuid.UUID) ([]*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Device
	for _, d := range f.devices {
		if d.PartyID == partyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateDevice(_ context.Context, deviceID uuid.UUID, patch DevicePatch) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	if patch.Label != nil {
		d.Label = *patch.Label
	}
	if patch.GridX != nil {
		d.GridX = *patch.GridX
	}
	if patch.GridY != nil {
		d.GridY = *patch.GridY
	}
	if patch.AngleDeg != nil {
		d.AngleDeg = *patch.AngleDeg
	}
	if patch.IsMainDevice != nil {
		d.IsMainDevice = *patch.IsMainDevice
	}
	return d, nil
}

func (f *fakeRepo) SetDeviceConnected(_ context.Context, deviceID uuid.UUID, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Connected = connected
	return nil
}

func (f *fakeRepo) DisconnectUserDevice(_ context.Context, partyID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.PartyID == partyID && d.UserID == userID {
			d.Connected = false
			return nil
		}
	}
	return ErrDeviceNotFound
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.True(t, ValidCode(code), "code %q", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("ROOM1234"))
	assert.False(t, ValidCode("room1234"))
	assert.False(t, ValidCode("ROOM123"))
	assert.False(t, ValidCode("ROOM-123"))
	assert.False(t, ValidCode(""))
}

func TestCreateParty(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	host := uuid.New()

	party, err := app.CreateParty(context.Background(), host, "  Friday night  ")
	require.NoError(t, err)
	assert.Equal(t, "Friday night", party.Name)
	assert.Equal(t, host, party.HostID)
	assert.True(t, party.IsActive)
	assert.True(t, ValidCode(party.Code))
}

func TestCreatePartyValidation(t *testing.T) {
	app := NewApp(newFakeRepo())

	_, err := app.CreateParty(context.Background(), uuid.Nil, "name")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = app.CreateParty(context.Background(), uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreatePartyRetriesOnCodeCollision(t *testing.T) {
	repo := newFakeRepo()
	repo.taken["AAAAAAAA"] = true
	app := NewApp(repo)

	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	app.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	party, err := app.CreateParty(context.Background(), uuid.New(), "retry")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBB", party.Code)
	assert.Equal(t, 3, repo.creates)
}

func TestCreatePartyGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newFakeRepo()
	repo.taken["AAAAAAAA"] = true
	app := NewApp(repo)
	app.newCode = func() (string, error) { return "AAAAAAAA", nil }

	_, err := app.CreateParty(context.Background(), uuid.New(), "unlucky")
	assert.ErrorIs(t, err, ErrCodeTaken)
	assert.Equal(t, maxCodeAttempts, repo.creates)
}

func TestResolvePartyIsCaseInsensitive(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	party, err := app.CreateParty(context.Background(), uuid.New(), "case")
	require.NoError(t, err)

	got, err := app.ResolveParty(context.Background(), " "+strings.ToLower(party.Code)+" ")
	require.NoError(t, err)
	assert.Equal(t, party.ID, got.ID)

	_, err = app.ResolveParty(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, ErrPartyNotFound)

	_, err = app.ResolveParty(context.Background(), "bad code!")
	assert.ErrorIs(t, err, ErrPartyNotFound)
}

func TestJoinPartyIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "join")
	require.NoError(t, err)

	user := uuid.New()
	first, err := app.JoinParty(ctx, party.Code, user, "Kitchen")
	require.NoError(t, err)
	second, err := app.JoinParty(ctx, party.Code, user, "Kitchen speaker")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Kitchen speaker", second.Label)
	assert.True(t, second.Connected)

	devices, err := app.ListDevices(ctx, party.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestJoinInactiveParty(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "closed")
	require.NoError(t, err)
	require.NoError(t, app.SetActive(ctx, party.ID, false))

	_, err = app.JoinParty(ctx, party.Code, uuid.New(), "late")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLeaveParty(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "leave")
	require.NoError(t, err)
	user := uuid.New()
	device, err := app.JoinParty(ctx, party.Code, user, "phone")
	require.NoError(t, err)

	require.NoError(t, app.LeaveParty(ctx, party.ID, user))
	got, err := repo.GetDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.False(t, got.Connected)

	assert.ErrorIs(t, app.LeaveParty(ctx, party.ID, uuid.New()), ErrDeviceNotFound)
}

func TestUpdateDevice(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "layout")
	require.NoError(t, err)
	user := uuid.New()
	_, err = app.JoinParty(ctx, party.Code, user, "left")
	require.NoError(t, err)

	x, angle := 3, 45.5
	updated, err := app.UpdateDevice(ctx, party.ID, user, DevicePatch{GridX: &x, AngleDeg: &angle})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.GridX)
	assert.Equal(t, 0, updated.GridY)
	assert.Equal(t, 45.5, updated.AngleDeg)
	assert.Equal(t, "left", updated.Label)

	_, err = app.UpdateDevice(ctx, party.ID, uuid.New(), DevicePatch{GridX: &x})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestUpdateDeviceRejectsBadPatch(t *testing.T) {
	app := NewApp(newFakeRepo())
	long := string(make([]byte, maxLabelLength+1))

	_, err := app.UpdateDevice(context.Background(), uuid.New(), uuid.New(), DevicePatch{Label: &long})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSetDeviceConnected(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "tracker")
	require.NoError(t, err)
	device, err := app.JoinParty(ctx, party.Code, uuid.New(), "tv")
	require.NoError(t, err)

	require.NoError(t, app.SetDeviceConnected(ctx, device.ID, false))
	got, _ := repo.GetDevice(ctx, device.ID)
	assert.False(t, got.Connected)

	err = app.SetDeviceConnected(ctx, uuid.New(), true)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestDeleteParty(t *testing.T) {
	repo := newFakeRepo()
	app := NewApp(repo)
	ctx := context.Background()
	party, err := app.CreateParty(ctx, uuid.New(), "gone")
	require.NoError(t, err)
	_, err = app.JoinParty(ctx, party.Code, uuid.New(), "tv")
	require.NoError(t, err)

	require.NoError(t, app.DeleteParty(ctx, party.ID))
	_, err = app.ResolveParty(ctx, party.Code)
	assert.ErrorIs(t, err, ErrPartyNotFound)
	devices, err := app.ListDevices(ctx, party.ID)
	require.NoError(t, err)
	assert.Empty(t, devices)

	assert.ErrorIs(t, app.DeleteParty(ctx, party.ID), ErrPartyNotFound)
}
