package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/rs/zerolog/log"
)

// DeviceTracker records device connectivity in the party directory.
// Connectivity is the only durable field the real-time path touches.
type DeviceTracker interface {
	SetDeviceConnected(ctx context.Context, deviceID uuid.UUID, connected bool) error
}

// ConnectionManager terminates websocket connections for parties and dispatches
// their frames to the clock engine or the relay
type ConnectionManager struct {
	registry *Registry
	relay    *Relay
	clock    *ClockEngine
	devices  DeviceTracker
	wall     clockwork.Clock

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration              `yaml:"write_timeout"`
	ReadTimeout     time.Duration              `yaml:"read_timeout"`
	PingInterval    time.Duration              `yaml:"ping_interval"`
	MaxMessageSize  int64                      `yaml:"max_message_size"`
	ReadBufferSize  int                        `yaml:"read_buffer_size"`
	WriteBufferSize int                        `yaml:"write_buffer_size"`
	SendQueueSize   int                        `yaml:"send_queue_size"`
	TrackerTimeout  time.Duration              `yaml:"tracker_timeout"`
	CheckOrigin     func(r *http.Request) bool `yaml:"-"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendQueueSize:   256,
		TrackerTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			// Devices connect from arbitrary origins (native apps, LAN hosts)
			return true
		},
	}
}

// withDefaults fills zero values from DefaultConnectionConfig
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	def := DefaultConnectionConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.TrackerTimeout <= 0 {
		c.TrackerTimeout = def.TrackerTimeout
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = def.CheckOrigin
	}
	return c
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, registry *Registry, relay *Relay, clock *ClockEngine, devices DeviceTracker) *ConnectionManager {
	config = config.withDefaults()
	return &ConnectionManager{
		registry: registry,
		relay:    relay,
		clock:    clock,
		devices:  devices,
		wall:     clockwork.NewRealClock(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins it to the party
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, party string, deviceID *uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		Party:       party,
		DeviceID:    deviceID,
		conn:        conn,
		send:        make(chan []byte, cm.config.SendQueueSize),
		done:        make(chan struct{}),
		manager:     cm,
		ConnectedAt: cm.wall.Now(),
	}

	// Queue the acknowledgement before registering so it is the first frame out
	connection.stampAndSend(func(now int64) any {
		return events.Connected{
			Type:         events.TypeConnected,
			ConnectionID: connection.id,
			Party:        party,
			ServerNowMs:  now,
		}
	})
	cm.registry.Register(party, connection)

	// Start connection handlers
	go connection.writePump()
	go connection.readPump()

	logEvent := log.Info().
		Str("connection_id", connection.id).
		Str("party", party)
	if deviceID != nil {
		logEvent = logEvent.Str("device_id", deviceID.String())
	}
	logEvent.Msg("WebSocket connection established")

	return nil
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() RegistryStats {
	return cm.registry.Stats()
}

// Connection represents a WebSocket connection from one device
type Connection struct {
	id       string
	Party    string
	DeviceID *uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	manager  *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time

	// lastServerNowMs is only touched by the read goroutine
	lastServerNowMs int64

	done      chan struct{}
	closeOnce sync.Once
	leaveOnce sync.Once
}

// ID returns the connection ID
func (c *Connection) ID() string {
	return c.id
}

// Enqueue queues a frame for the write pump without blocking
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the transport down. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// leave deregisters the connection exactly once, whatever the reason for closing
func (c *Connection) leave() {
	c.leaveOnce.Do(func() {
		c.manager.registry.Deregister(c.Party, c)
		c.Close()
		c.trackDevice(false)

		log.Info().
			Str("connection_id", c.id).
			Str("party", c.Party).
			Dur("connected_for", c.manager.wall.Since(c.ConnectedAt)).
			Msg("connection closed")
	})
}

func (c *Connection) trackDevice(connected bool) {
	if c.DeviceID == nil || c.manager.devices == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.TrackerTimeout)
	defer cancel()

	if err := c.manager.devices.SetDeviceConnected(ctx, *c.DeviceID, connected); err != nil {
		log.Error().
			Err(err).
			Str("connection_id", c.id).
			Str("device_id", c.DeviceID.String()).
			Bool("connected", connected).
			Msg("failed to update device connectivity")
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
// It is the connection's owning task: when it returns the connection has left the party.
func (c *Connection) readPump() {
	defer c.leave()

	c.trackDevice(true)

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientMessage processes one frame received from the client.
// Malformed frames and unknown types are dropped without telling the client.
func (c *Connection) handleClientMessage(message []byte) {
	in, err := events.Decode(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.id).
			Msg("dropping malformed frame")
		return
	}

	switch {
	case in.Type == events.TypePing:
		c.sendJSON(events.NewPong())

	case in.Type == events.TypeTimeSync:
		reply := c.manager.clock.Reply(in, c.lastServerNowMs)
		c.lastServerNowMs = reply.ServerNowMs
		c.sendJSON(reply)

	case in.Type.IsRelayed():
		event, err := events.FromInbound(in)
		if err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.id).
				Str("type", string(in.Type)).
				Msg("dropping invalid event")
			return
		}
		if err := c.manager.relay.Publish(c.Party, c, event); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.id).
				Str("party", c.Party).
				Msg("failed to relay event")
		}

	default:
		log.Debug().
			Str("connection_id", c.id).
			Str("type", string(in.Type)).
			Msg("ignoring unknown frame type")
	}
}

// stampAndSend reads the clock as late as possible before queueing a frame
func (c *Connection) stampAndSend(build func(now int64) any) {
	now := c.manager.clock.Stamp(c.lastServerNowMs)
	c.lastServerNowMs = now
	c.sendJSON(build(now))
}

func (c *Connection) sendJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to marshal reply")
		return
	}
	if !c.Enqueue(frame) {
		log.Warn().Str("connection_id", c.id).Msg("send queue full, dropping reply")
	}
}
