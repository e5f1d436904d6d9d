package proxy

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/eventproxy/pkg/bus"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *Registry, *Hub) {
	t.Helper()
	hub := NewHub()
	t.Cleanup(hub.Close)
	registry := NewRegistry(hub)
	return NewBroadcaster(registry, hub), registry, hub
}

func mustEvent(t *testing.T, method string) Event {
	t.Helper()
	domain, err := ParseDomain(method)
	require.NoError(t, err)
	event, err := NewEvent("sess-1", domain, method, json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	return event
}

func TestBroadcastDeliversOneFrameToEachSubscriber(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	transports := []*fakeTransport{newFakeTransport(), newFakeTransport(), newFakeTransport()}
	for _, transport := range transports {
		registry.Add(transport)
	}

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "Page.loadEventFired")))

	var first []byte
	for i, transport := range transports {
		require.Equal(t, 1, transport.frameCount(), "transport %d", i)
		if i == 0 {
			first = transport.frame(0)
			var decoded map[string]map[string]any
			require.NoError(t, json.Unmarshal(first, &decoded))
			assert.Equal(t, "Page.loadEventFired", decoded["event"]["method"])
		} else {
			assert.Equal(t, first, transport.frame(0), "all subscribers receive the identical frame")
		}
	}
}

func TestBroadcastPrunesClosedTransports(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	open := newFakeTransport()
	closed := newFakeTransport()
	closed.open = false

	registry.Add(open)
	registry.Add(closed)
	require.Equal(t, 2, registry.Count())

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "Network.requestWillBeSent")))

	assert.Equal(t, 1, open.frameCount())
	assert.Equal(t, 0, closed.frameCount(), "closed transport must not be written to")
	assert.Equal(t, 1, registry.Count(), "closed transport pruned as a side effect")
}

func TestBroadcastFailureIsolation(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	failing := newFakeTransport()
	failing.failWrites = true
	healthy := newFakeTransport()

	registry.Add(failing)
	registry.Add(healthy)

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "Runtime.exceptionThrown")))

	assert.Equal(t, 1, healthy.frameCount(), "failure of one subscriber must not block others")
	assert.Equal(t, 1, registry.Count(), "failing subscriber pruned, never retried")
	_, stillThere := registry.Lookup(healthyID(registry))
	assert.True(t, stillThere)
}

func healthyID(registry *Registry) string {
	subs := registry.snapshot()
	if len(subs) == 0 {
		return ""
	}
	return subs[0].ID
}

func TestBroadcastPreservesEventOrder(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	transport := newFakeTransport()
	registry.Add(transport)

	methods := []string{"Page.loadEventFired", "Network.requestWillBeSent", "Network.responseReceived"}
	for _, method := range methods {
		require.NoError(t, broadcaster.Broadcast(mustEvent(t, method)))
	}

	require.Equal(t, len(methods), transport.frameCount())
	for i, method := range methods {
		var decoded map[string]map[string]any
		require.NoError(t, json.Unmarshal(transport.frame(i), &decoded))
		assert.Equal(t, method, decoded["event"]["method"])
	}
}

func TestBroadcastPublishesEventNotification(t *testing.T) {
	broadcaster, _, hub := newTestBroadcaster(t)

	ch, cancel := hub.Subscribe(NotifyEvent)
	defer cancel()

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "DOM.documentUpdated")))

	select {
	case n := <-ch:
		require.NotNil(t, n.Event)
		assert.Equal(t, "DOM.documentUpdated", n.Event.Method)
		assert.Equal(t, "sess-1", n.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event notification")
	}
}

func TestBroadcastMirrorsFrames(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	sink := bus.NewMemorySink()
	defer sink.Close()
	broadcaster.SetMirror(sink, "events.browser")

	transport := newFakeTransport()
	registry.Add(transport)

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "Console.messageAdded")))

	frames := sink.Frames("events.browser")
	require.Len(t, frames, 1)
	assert.Equal(t, transport.frame(0), frames[0], "mirror receives the same serialized frame")
}

func TestConcurrentBroadcastAndRegistration(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	event := mustEvent(t, "Page.loadEventFired")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = broadcaster.Broadcast(event)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			registry.Add(newFakeTransport())
			registry.List()
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, registry.Count())
}

func TestBroadcastRefreshesLastActive(t *testing.T) {
	broadcaster, registry, _ := newTestBroadcaster(t)

	transport := newFakeTransport()
	added := registry.Add(transport)

	require.NoError(t, broadcaster.Broadcast(mustEvent(t, "Page.loadEventFired")))

	after, ok := registry.Lookup(added.ID)
	require.True(t, ok)
	assert.False(t, after.LastActiveAt.Before(added.LastActiveAt))
}

func TestBroadcastWithNoSubscribers(t *testing.T) {
	broadcaster, _, _ := newTestBroadcaster(t)
	assert.NoError(t, broadcaster.Broadcast(mustEvent(t, "Page.frameNavigated")))
}
