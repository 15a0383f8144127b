package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	headerInstanceID = "Instance-ID"
	headerPartyCode  = "Party-Code"
	headerEvent      = "Event-Type"
)

// Party codes must be a single NATS subject token
var subjectSafeCode = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Bus carries relayed events between gateway instances
type Bus interface {
	Publish(ctx context.Context, party string, event *events.Event) error
}

// NoopBus keeps every event on this instance
type NoopBus struct{}

// Publish does nothing
func (NoopBus) Publish(context.Context, string, *events.Event) error { return nil }

// BusConfig holds configuration for the NATS bus
type BusConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// DefaultBusConfig returns default bus configuration. An empty URL disables the bus.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		URL:           "",
		SubjectPrefix: "party.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBus publishes relayed events on core NATS so that members of the same party
// connected to other gateway instances receive them. Events are ephemeral, so
// there is no stream behind the subjects.
type NATSBus struct {
	nc         *nats.Conn
	config     BusConfig
	instanceID string

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATSBus connects to NATS
func NewNATSBus(config BusConfig) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("syncparty-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSBus{
		nc:         nc,
		config:     config,
		instanceID: uuid.New().String(),
	}, nil
}

// Publish sends an event to the other gateway instances
func (b *NATSBus) Publish(ctx context.Context, party string, event *events.Event) error {
	msg, err := encodeBusMessage(b.config.SubjectPrefix, b.instanceID, party, event)
	if err != nil {
		return err
	}
	if msg == nil {
		log.Debug().Str("party", party).Msg("party code is not subject safe, keeping event local")
		return nil
	}
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

// Subscribe delivers events published by other instances to handler
func (b *NATSBus) Subscribe(handler func(party string, event *events.Event)) error {
	sub, err := b.nc.Subscribe(b.config.SubjectPrefix+".>", func(msg *nats.Msg) {
		party, event, fromSelf, err := decodeBusMessage(b.instanceID, msg)
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode bus message")
			return
		}
		if fromSelf {
			return
		}
		handler(party, event)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.config.SubjectPrefix, err)
	}
	// The server has registered the interest once the flush returns
	if err := b.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	log.Info().
		Str("subject", sub.Subject).
		Str("instance", b.instanceID).
		Msg("subscribed to party event bus")
	return nil
}

// Connected reports whether the NATS connection is up
func (b *NATSBus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Subscribed reports whether events from other instances are being received
func (b *NATSBus) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil && b.sub.IsValid()
}

// Close drops the subscription and closes the connection
func (b *NATSBus) Close() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe from bus")
		}
	}
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

// encodeBusMessage returns nil when the party code cannot be used as a subject token
func encodeBusMessage(prefix, instanceID, party string, event *events.Event) (*nats.Msg, error) {
	if !subjectSafeCode.MatchString(party) {
		return nil, nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: prefix + "." + party,
		Data:    data,
		Header: nats.Header{
			headerInstanceID: []string{instanceID},
			headerPartyCode:  []string{party},
			headerEvent:      []string{string(event.Name)},
		},
	}, nil
}

func decodeBusMessage(instanceID string, msg *nats.Msg) (party string, event *events.Event, fromSelf bool, err error) {
	if msg.Header.Get(headerInstanceID) == instanceID {
		return "", nil, true, nil
	}

	party = msg.Header.Get(headerPartyCode)
	if party == "" {
		// Fall back to the last subject token
		if idx := strings.LastIndex(msg.Subject, "."); idx >= 0 {
			party = msg.Subject[idx+1:]
		}
	}
	if party == "" {
		return "", nil, false, fmt.Errorf("no party in subject %q", msg.Subject)
	}

	event = &events.Event{}
	if err := json.Unmarshal(msg.Data, event); err != nil {
		return "", nil, false, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Name == "" {
		return "", nil, false, fmt.Errorf("event without name on %q", msg.Subject)
	}
	return party, events.NewEvent(event.Name, event.Data), false, nil
}
