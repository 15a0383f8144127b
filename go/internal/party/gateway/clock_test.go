package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/syncparty/go/internal/party/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeInbound(t *testing.T, frame string) *events.Inbound {
	t.Helper()
	in, err := events.Decode([]byte(frame))
	require.NoError(t, err)
	return in
}

func TestReplyEchoesClientToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(5000))
	engine := NewClockEngine(clock)

	reply := engine.Reply(decodeInbound(t, `{"type":"time_sync","clientSentAt":1000}`), 0)
	assert.Equal(t, events.TypeTimeSync, reply.Event)
	assert.Equal(t, int64(5000), reply.ServerNowMs)
	assert.JSONEq(t, `1000`, string(reply.ClientSentAt))

	reply = engine.Reply(decodeInbound(t, `{"type":"time_sync","clientSentAt":"opaque-token"}`), 0)
	assert.JSONEq(t, `"opaque-token"`, string(reply.ClientSentAt))

	reply = engine.Reply(decodeInbound(t, `{"type":"time_sync","data":{"clientSentAt":42}}`), 0)
	assert.JSONEq(t, `42`, string(reply.ClientSentAt))
}

func TestReplyWithoutTokenEncodesNull(t *testing.T) {
	engine := NewClockEngine(clockwork.NewFakeClockAt(time.UnixMilli(5000)))

	reply := engine.Reply(decodeInbound(t, `{"type":"time_sync"}`), 0)
	raw, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"time_sync","serverNowMs":5000,"clientSentAt":null}`, string(raw))
}

func TestStampIsMonotonicPerCaller(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(10_000))
	engine := NewClockEngine(clock)

	first := engine.Stamp(0)
	assert.Equal(t, int64(10_000), first)

	// Wall clock steps backwards
	engine.clock = clockwork.NewFakeClockAt(time.UnixMilli(9_000))
	second := engine.Stamp(first)
	assert.Equal(t, first, second)

	clock.Advance(time.Second)
	engine.clock = clock
	third := engine.Stamp(second)
	assert.Equal(t, int64(11_000), third)
}
