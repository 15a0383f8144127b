// Package clocksync estimates the offset between a device clock and the party
// gateway's reference clock from time_sync round trips.
//
// For a request sent at local time T1, answered with server time Ts and
// received at local time T4:
//
//	rtt    = T4 - T1
//	offset = Ts - (T1 + rtt/2)
//
// The estimate uses the lowest-RTT sample of a sliding window, since queueing
// delay only ever inflates the round trip.
package clocksync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/party/events"
)

var (
	// ErrNotTimeSync is returned when Observe is given a frame that is not a time_sync reply
	ErrNotTimeSync = errors.New("not a time_sync reply")
	// ErrNoToken is returned when a reply does not echo a usable clientSentAt
	ErrNoToken = errors.New("reply has no client timestamp")
	// ErrSampleRejected is returned for samples that are negative or exceed MaxRTT
	ErrSampleRejected = errors.New("sample rejected")
)

// Quality describes how trustworthy the current estimate is
type Quality int

const (
	QualityLost Quality = iota
	QualityDegraded
	QualityGood
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// Config tunes the estimator
type Config struct {
	Window      int           // Samples considered for the estimate
	MaxRTT      time.Duration // Samples slower than this are discarded
	DegradedRTT time.Duration // Best RTT above this reports QualityDegraded
	StaleAfter  time.Duration // No accepted sample for this long reports QualityLost
}

// DefaultConfig returns default estimator configuration
func DefaultConfig() Config {
	return Config{
		Window:      8,
		MaxRTT:      time.Second,
		DegradedRTT: 150 * time.Millisecond,
		StaleAfter:  30 * time.Second,
	}
}

// Sample is one accepted round trip
type Sample struct {
	RTTMs    int64
	OffsetMs int64
	At       time.Time
}

// Estimator tracks the server clock offset. Safe for concurrent use.
type Estimator struct {
	clock  clockwork.Clock
	config Config

	mu      sync.RWMutex
	samples []Sample // ring of the last Window accepted samples
	next    int
	best    Sample
	synced  bool
	last    time.Time
}

// NewEstimator creates an estimator reading local time from clock
func NewEstimator(clock clockwork.Clock, config Config) *Estimator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.MaxRTT <= 0 {
		config.MaxRTT = def.MaxRTT
	}
	if config.DegradedRTT <= 0 {
		config.DegradedRTT = def.DegradedRTT
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &Estimator{
		clock:   clock,
		config:  config,
		samples: make([]Sample, 0, config.Window),
	}
}

// LocalNowMs returns the local clock in Unix milliseconds
func (e *Estimator) LocalNowMs() int64 {
	return e.clock.Now().UnixMilli()
}

// Request builds a time_sync frame stamped with the local send time
func (e *Estimator) Request() ([]byte, error) {
	t1 := e.LocalNowMs()
	return json.Marshal(events.Inbound{
		Type:         events.TypeTimeSync,
		ClientSentAt: json.RawMessage(strconv.FormatInt(t1, 10)),
	})
}

// Observe feeds a raw time_sync reply received now
func (e *Estimator) Observe(frame []byte) (Sample, error) {
	t4 := e.LocalNowMs()

	var reply events.TimeSyncReply
	if err := json.Unmarshal(frame, &reply); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrNotTimeSync, err)
	}
	if reply.Event != events.TypeTimeSync {
		return Sample{}, ErrNotTimeSync
	}

	var t1 int64
	if len(reply.ClientSentAt) == 0 || string(reply.ClientSentAt) == "null" {
		return Sample{}, ErrNoToken
	}
	if err := json.Unmarshal(reply.ClientSentAt, &t1); err != nil {
		return Sample{}, ErrNoToken
	}
	return e.AddSample(t1, reply.ServerNowMs, t4)
}

// AddSample records a round trip sent at t1, stamped ts by the server and received at t4
func (e *Estimator) AddSample(t1, ts, t4 int64) (Sample, error) {
	rtt := t4 - t1
	if rtt < 0 || time.Duration(rtt)*time.Millisecond > e.config.MaxRTT {
		return Sample{}, fmt.Errorf("%w: rtt %dms", ErrSampleRejected, rtt)
	}

	s := Sample{
		RTTMs:    rtt,
		OffsetMs: ts - (t1 + rtt/2),
		At:       e.clock.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) < e.config.Window {
		e.samples = append(e.samples, s)
	} else {
		e.samples[e.next] = s
	}
	e.next = (e.next + 1) % e.config.Window

	e.best = e.samples[0]
	for _, c := range e.samples[1:] {
		if c.RTTMs < e.best.RTTMs {
			e.best = c
		}
	}
	e.synced = true
	e.last = s.At
	return s, nil
}

// Offset returns the estimated server minus local offset in milliseconds and
// whether any sample has been accepted
func (e *Estimator) Offset() (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best.OffsetMs, e.synced
}

// RTT returns the round trip of the sample the estimate is based on
func (e *Estimator) RTT() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return time.Duration(e.best.RTTMs) * time.Millisecond
}

// Samples returns the number of samples in the window
func (e *Estimator) Samples() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.samples)
}

// Quality reports the state of the estimate
func (e *Estimator) Quality() Quality {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.synced || e.clock.Since(e.last) > e.config.StaleAfter {
		return QualityLost
	}
	if time.Duration(e.best.RTTMs)*time.Millisecond > e.config.DegradedRTT {
		return QualityDegraded
	}
	return QualityGood
}

// ServerNowMs returns the estimated current server time. Before the first
// sample it is the local time.
func (e *Estimator) ServerNowMs() int64 {
	offset, _ := e.Offset()
	return e.LocalNowMs() + offset
}

// ServerToLocal converts a server time to the local wall clock
func (e *Estimator) ServerToLocal(serverMs int64) time.Time {
	offset, _ := e.Offset()
	return time.UnixMilli(serverMs - offset)
}

// LocalToServer converts a local wall clock time to server time
func (e *Estimator) LocalToServer(local time.Time) int64 {
	offset, _ := e.Offset()
	return local.UnixMilli() + offset
}

// Until returns how long to wait locally before the server clock reaches
// serverMs. Past times yield zero.
func (e *Estimator) Until(serverMs int64) time.Duration {
	d := e.ServerToLocal(serverMs).Sub(e.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}
