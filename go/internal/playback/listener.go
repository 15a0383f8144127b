package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/rs/zerolog/log"
)

// ListenerConfig holds LISTEN/NOTIFY settings
type ListenerConfig struct {
	DatabaseURL          string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel        string // Channel name to LISTEN on
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	LoadTimeout          time.Duration // Bound on each snapshot read
}

// DefaultListenerConfig returns default listener configuration
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:          "",
		NotifyChannel:        "playback_state_changed",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
		LoadTimeout:          5 * time.Second,
	}
}

// Broadcaster delivers a server originated event to every live member of a party
type Broadcaster interface {
	Broadcast(party string, event *events.Event) error
}

// SnapshotReader reads the current playback snapshot
type SnapshotReader interface {
	Get(ctx context.Context, partyID uuid.UUID) (*models.PlaybackState, error)
}

// notificationSource is the subset of *pq.Listener the loop uses
type notificationSource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// changeNotice is the JSON payload the playback_states trigger sends
type changeNotice struct {
	PartyID uuid.UUID `json:"party_id"`
	Code    string    `json:"code"`
}

// Listener pushes playback snapshot changes to live party members
type Listener struct {
	source      notificationSource
	reader      SnapshotReader
	broadcaster Broadcaster
	cfg         ListenerConfig
}

// NewListener starts listening on the configured channel
func NewListener(reader SnapshotReader, broadcaster Broadcaster, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("playback listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for playback notifications")

	return newListener(l, reader, broadcaster, cfg), nil
}

func newListener(source notificationSource, reader SnapshotReader, broadcaster Broadcaster, cfg ListenerConfig) *Listener {
	def := DefaultListenerConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}
	return &Listener{
		source:      source,
		reader:      reader,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// Start runs the notification loop until ctx is cancelled
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("playback listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notify := l.source.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("playback listener shutting down")
			return l.Stop()
		case note, ok := <-notify:
			if !ok {
				return nil
			}
			if note == nil {
				// Reconnected; notifications sent while down are lost
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle playback notification")
			}
		case <-pingTicker.C:
			if err := l.source.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping playback listener")
			}
		}
	}
}

// Stop closes the underlying listener connection
func (l *Listener) Stop() error {
	return l.source.Close()
}

// handleNotification loads the changed snapshot and broadcasts it to the party
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	var notice changeNotice
	if err := json.Unmarshal([]byte(extra), &notice); err != nil {
		return fmt.Errorf("invalid playback notification %q: %w", extra, err)
	}
	if notice.PartyID == uuid.Nil || notice.Code == "" {
		return fmt.Errorf("incomplete playback notification %q", extra)
	}

	loadCtx, cancel := context.WithTimeout(ctx, l.cfg.LoadTimeout)
	defer cancel()
	state, err := l.reader.Get(loadCtx, notice.PartyID)
	if err != nil {
		return fmt.Errorf("failed to load playback state: %w", err)
	}

	event, err := events.MarshalEvent(SnapshotPayload(state))
	if err != nil {
		return err
	}
	if err := l.broadcaster.Broadcast(notice.Code, event); err != nil {
		return fmt.Errorf("failed to broadcast playback state: %w", err)
	}

	log.Debug().
		Str("party", notice.Code).
		Bool("is_playing", state.IsPlaying).
		Msg("broadcast playback state")
	return nil
}

// SnapshotPayload converts a ledger snapshot into its wire payload
func SnapshotPayload(state *models.PlaybackState) events.PlaybackStatePayload {
	return events.PlaybackStatePayload{
		TrackURI:   state.TrackURI,
		PositionMs: state.PositionMs,
		IsPlaying:  state.IsPlaying,
		TrackMeta:  state.TrackMeta,
		UpdatedAt:  state.UpdatedAt.UnixMilli(),
	}
}
