package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/rs/zerolog/log"
)

// ErrRelayBacklogged is returned when a party's fan-out queue is full
var ErrRelayBacklogged = errors.New("party relay queue full")

// ErrRelayClosed is returned after the relay has been shut down
var ErrRelayClosed = errors.New("relay closed")

// RelayConfig holds fan-out tunables
type RelayConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultRelayConfig returns default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		QueueSize:   256,
		IdleTimeout: time.Minute,
	}
}

// Relay fans events out to party members. Each active party has one fan-out
// goroutine draining a FIFO queue, so events from a single sender reach every
// recipient in the order they were published.
type Relay struct {
	registry *Registry
	bus      Bus
	clock    clockwork.Clock
	config   RelayConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	fanouts map[string]*fanout
	closed  bool
}

type fanout struct {
	party string
	queue chan delivery
}

type delivery struct {
	sender  Member // nil for server originated events
	event   *events.Event
	forward bool // also publish on the bus
}

// NewRelay creates a relay over the registry. A nil bus keeps events local.
func NewRelay(registry *Registry, bus Bus, clock clockwork.Clock, config RelayConfig) *Relay {
	if bus == nil {
		bus = NoopBus{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRelayConfig().QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultRelayConfig().IdleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		registry: registry,
		bus:      bus,
		clock:    clock,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		fanouts:  make(map[string]*fanout),
	}
}

// Publish relays an event from sender to every other member of the party.
// It never blocks on recipients; delivery failures are handled by the relay.
func (r *Relay) Publish(party string, sender Member, event *events.Event) error {
	return r.enqueue(party, delivery{sender: sender, event: event, forward: true})
}

// Broadcast relays a server originated event to every member of the party
func (r *Relay) Broadcast(party string, event *events.Event) error {
	return r.enqueue(party, delivery{event: event, forward: false})
}

// Close stops all fan-out goroutines and waits for them to exit
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// ActiveFanouts returns the number of parties with a running fan-out goroutine
func (r *Relay) ActiveFanouts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fanouts)
}

func (r *Relay) enqueue(party string, d delivery) error {
	// The lock is held across the non-blocking send so an idle fan-out cannot
	// exit between lookup and enqueue.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRelayClosed
	}

	f, ok := r.fanouts[party]
	if !ok {
		f = &fanout{party: party, queue: make(chan delivery, r.config.QueueSize)}
		r.fanouts[party] = f
		r.wg.Add(1)
		go r.run(f)
	}

	select {
	case f.queue <- d:
		return nil
	default:
		log.Warn().Str("party", party).Msg("relay queue full, dropping event")
		return ErrRelayBacklogged
	}
}

// run drains one party's queue until the relay closes or the party goes idle
func (r *Relay) run(f *fanout) {
	defer r.wg.Done()

	idle := r.clock.NewTimer(r.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case d := <-f.queue:
			r.deliver(f.party, d)
			stopAndDrain(idle)
			idle.Reset(r.config.IdleTimeout)
		case <-idle.Chan():
			if r.retire(f) {
				log.Debug().Str("party", f.party).Msg("party relay idle, stopping")
				return
			}
			idle.Reset(r.config.IdleTimeout)
		}
	}
}

// retire removes an idle fan-out unless work arrived in the meantime
func (r *Relay) retire(f *fanout) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(f.queue) > 0 {
		return false
	}
	if r.fanouts[f.party] == f {
		delete(r.fanouts, f.party)
	}
	return true
}

func (r *Relay) deliver(party string, d delivery) {
	// Marshal the event once
	frame, err := json.Marshal(d.event)
	if err != nil {
		log.Error().Err(err).Str("party", party).Msg("failed to marshal event for relay")
		return
	}

	members := r.registry.MembersOf(party)
	delivered := 0
	for _, m := range members {
		if d.sender != nil && m.ID() == d.sender.ID() {
			continue
		}
		if !m.Enqueue(frame) {
			// Slow or gone: treat as a departure
			log.Warn().
				Str("connection_id", m.ID()).
				Str("party", party).
				Msg("recipient unreachable, removing from party")
			r.registry.Deregister(party, m)
			m.Close()
			continue
		}
		delivered++
	}

	log.Debug().
		Str("event", string(d.event.Name)).
		Str("party", party).
		Int("recipients", delivered).
		Msg("event relayed")

	if d.forward {
		if err := r.bus.Publish(r.ctx, party, d.event); err != nil {
			log.Error().Err(err).Str("party", party).Msg("failed to publish event to bus")
		}
	}
}

// stopAndDrain stops a timer and drains its channel if it already fired
func stopAndDrain(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
