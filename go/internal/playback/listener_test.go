package playback

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ch     chan *pq.Notification
	closed chan struct{}
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan *pq.Notification, 4), closed: make(chan struct{})}
}

func (s *fakeSource) NotificationChannel() <-chan *pq.Notification { return s.ch }
func (s *fakeSource) Ping() error                                  { return nil }
func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type broadcast struct {
	party string
	event *events.Event
}

type fakeBroadcaster struct {
	got chan broadcast
}

func (b *fakeBroadcaster) Broadcast(party string, event *events.Event) error {
	b.got <- broadcast{party: party, event: event}
	return nil
}

func notice(t *testing.T, partyID uuid.UUID, code string) string {
	t.Helper()
	raw, err := json.Marshal(changeNotice{PartyID: partyID, Code: code})
	require.NoError(t, err)
	return string(raw)
}

func TestListenerBroadcastsSnapshot(t *testing.T) {
	party := uuid.New()
	repo := newFakeRepo(party)
	repo.states[party].TrackURI = "file:///a.mp3"
	repo.states[party].PositionMs = 42_000
	repo.states[party].IsPlaying = true
	repo.states[party].UpdatedAt = time.UnixMilli(1_700_000_000_000)

	source := newFakeSource()
	bc := &fakeBroadcaster{got: make(chan broadcast, 1)}
	l := newListener(source, NewLedger(repo), bc, DefaultListenerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	source.ch <- nil // reconnect marker is ignored
	source.ch <- &pq.Notification{Channel: "playback_state_changed", Extra: notice(t, party, "ROOM1234")}

	select {
	case b := <-bc.got:
		assert.Equal(t, "ROOM1234", b.party)
		assert.Equal(t, events.TypePlaybackState, b.event.Name)
		payload := events.ParsePayload(b.event)
		assert.Equal(t, events.PlaybackStatePayload{
			TrackURI:   "file:///a.mp3",
			PositionMs: 42_000,
			IsPlaying:  true,
			UpdatedAt:  1_700_000_000_000,
		}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast")
	}

	cancel()
	require.NoError(t, <-done)
	select {
	case <-source.closed:
	default:
		t.Fatal("source not closed on shutdown")
	}
}

func TestHandleNotificationRejectsBadPayload(t *testing.T) {
	l := newListener(newFakeSource(), NewLedger(newFakeRepo()), &fakeBroadcaster{got: make(chan broadcast, 1)}, ListenerConfig{})
	ctx := context.Background()

	assert.Error(t, l.handleNotification(ctx, "not json"))
	assert.Error(t, l.handleNotification(ctx, `{"code":"ROOM1234"}`))
	assert.ErrorIs(t, l.handleNotification(ctx, notice(t, uuid.New(), "ROOM1234")), ErrPlaybackNotFound)
}

func TestSnapshotPayloadKeepsTrackMeta(t *testing.T) {
	p := SnapshotPayload(&models.PlaybackState{
		TrackURI:  "x",
		TrackMeta: json.RawMessage(`{"bpm":120}`),
		UpdatedAt: time.UnixMilli(5),
	})
	assert.JSONEq(t, `{"bpm":120}`, string(p.TrackMeta))
	assert.Equal(t, int64(5), p.UpdatedAt)
}
