package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
)

type failingBridge struct {
	published int
}

func (b *failingBridge) Publish(event Event) error {
	b.published++
	return errors.New("bridge is down")
}

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()

	require.NoError(t, bus.Publish(Event{Kind: StateChanged, State: core.SessionJoined}))

	got := <-first
	assert.Equal(t, StateChanged, got.Kind)
	assert.Equal(t, core.SessionJoined, got.State)
	assert.False(t, got.At.IsZero())

	got = <-second
	assert.Equal(t, StateChanged, got.Kind)
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// fill the subscriber without draining it
	_ = bus.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(Event{Kind: ChatReceived}))
	}
}

func TestBusBridgeErrorsDoNotPropagate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bridge := &failingBridge{}
	bus.Attach(bridge)

	require.NoError(t, bus.Publish(Event{Kind: PeerJoined, PeerID: core.PeerID("u1")}))
	assert.Equal(t, 1, bridge.published)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	events := bus.Subscribe()

	bus.Close()
	bus.Close()

	_, open := <-events
	assert.False(t, open)

	// publish after close is a quiet no-op
	require.NoError(t, bus.Publish(Event{Kind: SessionEnded}))

	late := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
