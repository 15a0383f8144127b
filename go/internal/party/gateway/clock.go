package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/party/events"
)

// Clock reconciliation
//
// The server only stamps its own reading of the reference clock and echoes the
// client's token. Clients run several round trips and estimate
//
//	rtt    = receivedAt - clientSentAt
//	offset = serverNowMs - (clientSentAt + rtt/2)
//
// then schedule relayed play/seek events that carry absolute server times
// (startAtEpochMs) at serverTime - offset on their own clock.
// See the clocksync package for a Go implementation of the client side.

// ClockEngine answers time_sync requests
type ClockEngine struct {
	clock clockwork.Clock
}

// NewClockEngine creates a clock engine backed by the given clock
func NewClockEngine(clock clockwork.Clock) *ClockEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockEngine{clock: clock}
}

// NowMs returns the server reference time in Unix milliseconds
func (e *ClockEngine) NowMs() int64 {
	return e.clock.Now().UnixMilli()
}

// Stamp reads the clock and clamps it so it never goes below last. Callers keep last
// per connection, which makes serverNowMs non-decreasing on that connection even if
// the wall clock steps backwards.
func (e *ClockEngine) Stamp(last int64) int64 {
	now := e.NowMs()
	if now < last {
		return last
	}
	return now
}

// Reply builds the time_sync reply for a request. The clock is read here, at
// processing time, and clientSentAt is passed through untouched.
func (e *ClockEngine) Reply(in *events.Inbound, last int64) events.TimeSyncReply {
	serverNow := e.Stamp(last)
	return events.TimeSyncReply{
		Event:        events.TypeTimeSync,
		ServerNowMs:  serverNow,
		ClientSentAt: clientToken(in),
	}
}

// clientToken finds the client's clientSentAt. Top level is preferred; clients
// that nest it under data are accepted too. Missing means null.
func clientToken(in *events.Inbound) json.RawMessage {
	if token := bytes.TrimSpace(in.ClientSentAt); len(token) > 0 {
		return token
	}
	if len(in.Data) == 0 {
		return nil
	}
	var nested struct {
		ClientSentAt json.RawMessage `json:"clientSentAt"`
	}
	if err := json.Unmarshal(in.Data, &nested); err != nil {
		return nil
	}
	if token := bytes.TrimSpace(nested.ClientSentAt); len(token) > 0 {
		return token
	}
	return nil
}
