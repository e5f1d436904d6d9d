package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe(NotifyConnect)
	defer cancel()

	hub.Publish(Notification{Kind: NotifyConnect, SessionID: "sess-1"})

	select {
	case n := <-ch:
		assert.Equal(t, NotifyConnect, n.Kind)
		assert.Equal(t, "sess-1", n.SessionID)
		assert.NotZero(t, n.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestHubKindFiltering(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe(NotifyDisconnect)
	defer cancel()

	hub.Publish(Notification{Kind: NotifyConnect})
	hub.Publish(Notification{Kind: NotifyClientConnected, SubscriberID: "a"})
	hub.Publish(Notification{Kind: NotifyDisconnect, Reason: "bye"})

	select {
	case n := <-ch:
		assert.Equal(t, NotifyDisconnect, n.Kind)
		assert.Equal(t, "bye", n.Reason)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
	select {
	case n := <-ch:
		t.Fatalf("unexpected extra notification %s", n.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSubscribeAllKinds(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Notification{Kind: NotifyConnect})
	hub.Publish(Notification{Kind: NotifyEvent})
	hub.Publish(Notification{Kind: NotifyClientDisconnected})

	var kinds []NotificationKind
	for i := 0; i < 3; i++ {
		select {
		case n := <-ch:
			kinds = append(kinds, n.Kind)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for notification")
		}
	}
	assert.Equal(t, []NotificationKind{NotifyConnect, NotifyEvent, NotifyClientDisconnected}, kinds)
}

func TestHubSlowListenerDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Never drained; its buffer fills and further publishes drop for it only.
	_, cancelSlow := hub.Subscribe(NotifyEvent)
	defer cancelSlow()

	fast, cancelFast := hub.Subscribe(NotifyEvent)
	defer cancelFast()

	for i := 0; i < 200; i++ {
		hub.Publish(Notification{Kind: NotifyEvent})
		select {
		case <-fast:
		case <-time.After(time.Second):
			t.Fatalf("fast listener starved at publish %d", i)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe(NotifyConnect)
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.NotPanics(t, cancel, "double unsubscribe must not panic")
}

func TestHubCloseClosesMultiKindListenersOnce(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(NotifyConnect, NotifyDisconnect)
	defer cancel()

	require.NotPanics(t, hub.Close)

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after close is a no-op.
	assert.NotPanics(t, func() {
		hub.Publish(Notification{Kind: NotifyConnect})
	})
}
