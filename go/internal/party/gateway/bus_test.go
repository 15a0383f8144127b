package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mcdev12/syncparty/go/internal/party/events"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusMessageRoundTrip(t *testing.T) {
	event := events.NewEvent(events.TypePlay, json.RawMessage(`{"trackId":"t1","startAtEpochMs":99}`))

	msg, err := encodeBusMessage("party.events", "instance-a", "ROOM1", event)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "party.events.ROOM1", msg.Subject)
	assert.Equal(t, "play", msg.Header.Get(headerEvent))

	party, decoded, fromSelf, err := decodeBusMessage("instance-b", msg)
	require.NoError(t, err)
	assert.False(t, fromSelf)
	assert.Equal(t, "ROOM1", party)
	assert.Equal(t, events.TypePlay, decoded.Name)
	assert.JSONEq(t, `{"trackId":"t1","startAtEpochMs":99}`, string(decoded.Data))
}

func TestBusSkipsOwnMessages(t *testing.T) {
	msg, err := encodeBusMessage("party.events", "instance-a", "ROOM1", events.NewEvent(events.TypePause, nil))
	require.NoError(t, err)

	_, _, fromSelf, err := decodeBusMessage("instance-a", msg)
	require.NoError(t, err)
	assert.True(t, fromSelf)
}

func TestBusKeepsUnsafeCodesLocal(t *testing.T) {
	for _, code := range []string{"ROOM.1", "ROOM 1", "ROOM*", ""} {
		msg, err := encodeBusMessage("party.events", "i", code, events.NewEvent(events.TypePause, nil))
		require.NoError(t, err)
		assert.Nil(t, msg, "code %q", code)
	}
}

func TestBusFallsBackToSubjectToken(t *testing.T) {
	msg, err := encodeBusMessage("party.events", "instance-a", "ROOM1", events.NewEvent(events.TypeRing, nil))
	require.NoError(t, err)
	msg.Header.Del(headerPartyCode)

	party, event, _, err := decodeBusMessage("instance-b", msg)
	require.NoError(t, err)
	assert.Equal(t, "ROOM1", party)
	assert.JSONEq(t, `{}`, string(event.Data))
}

func TestBusRejectsNamelessEvents(t *testing.T) {
	msg, err := encodeBusMessage("party.events", "instance-a", "ROOM1", events.NewEvent(events.TypeRing, nil))
	require.NoError(t, err)
	msg.Data = []byte(`{"data":{}}`)

	_, _, _, err = decodeBusMessage("instance-b", msg)
	assert.Error(t, err)
}

func runNATS(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

type busDelivery struct {
	party string
	event *events.Event
}

func subscribeBus(t *testing.T, bus *NATSBus) chan busDelivery {
	t.Helper()
	got := make(chan busDelivery, 16)
	require.NoError(t, bus.Subscribe(func(party string, event *events.Event) {
		got <- busDelivery{party: party, event: event}
	}))
	return got
}

func nextDelivery(t *testing.T, got chan busDelivery) busDelivery {
	t.Helper()
	select {
	case d := <-got:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no bus delivery")
		return busDelivery{}
	}
}

func TestNATSBusDeliversToOtherInstances(t *testing.T) {
	config := DefaultBusConfig()
	config.URL = runNATS(t)

	a, err := NewNATSBus(config)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewNATSBus(config)
	require.NoError(t, err)
	defer b.Close()

	gotA := subscribeBus(t, a)
	gotB := subscribeBus(t, b)
	assert.True(t, a.Subscribed())
	assert.True(t, a.Connected())

	ctx := context.Background()
	require.NoError(t, a.Publish(ctx, "ROOM1", events.NewEvent(events.TypePlay, json.RawMessage(`{"seekMs":1.5}`))))

	d := nextDelivery(t, gotB)
	assert.Equal(t, "ROOM1", d.party)
	assert.Equal(t, events.TypePlay, d.event.Name)
	assert.JSONEq(t, `{"seekMs":1.5}`, string(d.event.Data))

	// a skips its own play, so b's pause is the first thing it sees
	require.NoError(t, b.Publish(ctx, "ROOM1", events.NewEvent(events.TypePause, nil)))
	d = nextDelivery(t, gotA)
	assert.Equal(t, events.TypePause, d.event.Name)

	require.NoError(t, a.Close())
	assert.False(t, a.Subscribed())
}

func TestServicesRelayAcrossInstances(t *testing.T) {
	config := DefaultConfig()
	config.Bus.URL = runNATS(t)

	one := newTestGateway(t, config, nil, nil)
	two := newTestGateway(t, config, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, g := range []*testGateway{one, two} {
		go g.service.Start(ctx)
	}
	assert.Eventually(t, func() bool {
		return one.service.GetStats()["bus_subscribed"] == true &&
			two.service.GetStats()["bus_subscribed"] == true
	}, 2*time.Second, 10*time.Millisecond)

	sender := one.dial(t, "/ws/party/ROOM1/")
	local := one.dial(t, "/ws/party/ROOM1/")
	remote := two.dial(t, "/ws/party/room1/")
	one.waitForMembers(t, "ROOM1", 2)
	two.waitForMembers(t, "ROOM1", 1)

	sender.send(`{"type":"play","data":{"trackId":42,"seekMs":13345.678}}`)

	want := `{"event":"play","data":{"trackId":42,"seekMs":13345.678}}`
	assert.JSONEq(t, want, string(local.readRaw()))
	assert.JSONEq(t, want, string(remote.readRaw()))

	// The remote ring follows the play on the bus, so a looped back play
	// would reach instance one's members before it
	remote.send(`{"type":"ring"}`)
	assert.JSONEq(t, `{"event":"ring","data":{}}`, string(local.readRaw()))
	assert.JSONEq(t, `{"event":"ring","data":{}}`, string(sender.readRaw()))

	// remote gets nothing back from its own ring
	remote.send(`{"type":"ping"}`)
	assert.Equal(t, map[string]any{"type": "pong"}, remote.read())
}
