package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/models"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Directory is what the gateway needs from the party directory
type Directory interface {
	ResolveParty(ctx context.Context, code string) (*models.Party, error)
	ListDevices(ctx context.Context, partyID uuid.UUID) ([]*models.Device, error)
	SetDeviceConnected(ctx context.Context, deviceID uuid.UUID, connected bool) error
}

// Config holds configuration for the party gateway service
type Config struct {
	Connection        ConnectionConfig `yaml:"connection"`
	Relay             RelayConfig      `yaml:"relay"`
	Bus               BusConfig        `yaml:"bus"`
	RequireKnownParty bool             `yaml:"require_known_party"`
}

// DefaultConfig returns default configuration for the party gateway
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
		Relay:      DefaultRelayConfig(),
		Bus:        DefaultBusConfig(),
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the file keep their default.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// Service is the party gateway: it terminates device websockets, answers clock
// sync requests and relays party events, optionally across instances over NATS
type Service struct {
	registry          *Registry
	relay             *Relay
	bus               *NATSBus
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// NewService creates a new party gateway service. directory and playback may be
// nil, in which case parties are not validated, device connectivity is not
// recorded and the snapshot endpoint is not served.
func NewService(config Config, directory Directory, playback PlaybackReader) (*Service, error) {
	return newService(config, directory, playback, clockwork.NewRealClock())
}

func newService(config Config, directory Directory, playback PlaybackReader, clock clockwork.Clock) (*Service, error) {
	s := &Service{
		registry: NewRegistry(),
	}

	var bus Bus
	if config.Bus.URL != "" {
		natsBus, err := NewNATSBus(config.Bus)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		s.bus = natsBus
		bus = natsBus
	}

	clockEngine := NewClockEngine(clock)
	s.relay = NewRelay(s.registry, bus, clock, config.Relay)

	var (
		resolver PartyResolver
		tracker  DeviceTracker
	)
	if directory != nil {
		resolver = directory
		tracker = directory
	}

	s.connectionManager = NewConnectionManager(config.Connection, s.registry, s.relay, clockEngine, tracker)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, resolver, config.RequireKnownParty)
	if directory != nil && playback != nil {
		s.stateHandler = NewStateHandler(directory, playback, s.registry, clockEngine)
	}

	return s, nil
}

// Start subscribes to the event bus and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting party gateway service")

	if s.bus != nil {
		err := s.bus.Subscribe(func(party string, event *events.Event) {
			// Remote senders are not local members, so every local member receives it
			if err := s.relay.Broadcast(party, event); err != nil {
				log.Warn().Err(err).Str("party", party).Msg("failed to relay bus event")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to event bus: %w", err)
		}
	}

	<-ctx.Done()

	log.Info().Msg("party gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	s.relay.Close()

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event bus")
		}
	}

	log.Info().Msg("party gateway service stopped")
	return nil
}

// Broadcast delivers a server originated event to every live member of the party
// on this instance
func (s *Service) Broadcast(party string, event *events.Event) error {
	return s.relay.Broadcast(NormalizeCode(party), event)
}

// RegisterRoutes registers the WebSocket and snapshot HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.stateHandler != nil {
		s.stateHandler.RegisterStateRoutes(mux)
	}
	log.Info().Bool("snapshot_api", s.stateHandler != nil).Msg("party gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.registry.Stats()
	return map[string]interface{}{
		"service":           "party_gateway",
		"status":            "running",
		"total_connections": stats.TotalConnections,
		"active_parties":    stats.ActiveParties,
		"active_fanouts":    s.relay.ActiveFanouts(),
		"bus_connected":     s.bus != nil && s.bus.Connected(),
		"bus_subscribed":    s.bus != nil && s.bus.Subscribed(),
	}
}
