package proxy

import (
	"sync"
	"time"
)

// NotificationKind identifies the kind of engine notification.
type NotificationKind string

const (
	NotifyConnect            NotificationKind = "connect"
	NotifyDisconnect         NotificationKind = "disconnect"
	NotifyEvent              NotificationKind = "event"
	NotifyClientConnected    NotificationKind = "client_connected"
	NotifyClientDisconnected NotificationKind = "client_disconnected"
)

// Notification describes an engine lifecycle or event occurrence that
// external listeners can consume.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	Timestamp    int64            `json:"timestamp"`
	SessionID    string           `json:"sessionId,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	SubscriberID string           `json:"id,omitempty"`
	Event        *Event           `json:"event,omitempty"`
}

// Hub fans notifications out to any number of listeners, each subscribed by
// kind. One listener's slowness or failure cannot affect another: delivery is
// per-listener buffered and drops when the buffer is full.
type Hub struct {
	mu        sync.RWMutex
	listeners map[NotificationKind]map[chan Notification]struct{}
	closed    bool
}

// NewHub constructs a notification hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[NotificationKind]map[chan Notification]struct{})}
}

// Publish notifies all listeners subscribed to the notification's kind.
// Non-blocking; drops if a listener's buffer is full.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}
	for ch := range h.listeners[n.Kind] {
		select {
		case ch <- n:
		default:
			// Drop if the listener can't keep up; prevents blocking the engine.
		}
	}
}

// Subscribe returns a channel receiving future notifications of the given
// kinds and a cleanup func. Subscribing to no kinds means all kinds.
func (h *Hub) Subscribe(kinds ...NotificationKind) (<-chan Notification, func()) {
	if len(kinds) == 0 {
		kinds = []NotificationKind{
			NotifyConnect, NotifyDisconnect, NotifyEvent,
			NotifyClientConnected, NotifyClientDisconnected,
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Notification)
		close(empty)
		return empty, func() {}
	}

	ch := make(chan Notification, 64)
	for _, kind := range kinds {
		if h.listeners[kind] == nil {
			h.listeners[kind] = make(map[chan Notification]struct{})
		}
		h.listeners[kind][ch] = struct{}{}
	}

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		removed := false
		for _, kind := range kinds {
			if _, ok := h.listeners[kind][ch]; ok {
				delete(h.listeners[kind], ch)
				removed = true
			}
		}
		if removed {
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	seen := make(map[chan Notification]struct{})
	for kind, set := range h.listeners {
		for ch := range set {
			if _, dup := seen[ch]; !dup {
				seen[ch] = struct{}{}
				close(ch)
			}
		}
		delete(h.listeners, kind)
	}
}
