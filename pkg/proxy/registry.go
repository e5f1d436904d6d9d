package proxy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/eventproxy/pkg/logging"
)

// Transport is a subscriber's delivery channel. The registry does not own
// it: closing the underlying connection is the transport owner's
// responsibility. Implementations must serialize their own writes.
type Transport interface {
	// WriteMessage delivers one serialized frame.
	WriteMessage(data []byte) error

	// IsOpen reports whether the transport can still deliver.
	IsOpen() bool

	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string

	// SetCloseHandler installs a hook invoked when the transport closes.
	SetCloseHandler(func())
}

// Subscriber is one registered event consumer. The registry hands out value
// copies; the live record is mutated only under the registry mutex.
type Subscriber struct {
	ID           string
	Transport    Transport
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Registry tracks active subscriber identities. A subscriber id is stable
// for the life of one transport connection: re-registering the same
// transport returns the same id.
type Registry struct {
	hub    *Hub
	logger *logging.Logger

	mu    sync.Mutex
	byID  map[string]*Subscriber
	order []*Subscriber
	ids   map[Transport]string
}

// NewRegistry creates a subscriber registry publishing client notifications
// to hub.
func NewRegistry(hub *Hub) *Registry {
	return &Registry{
		hub:    hub,
		logger: logging.NewLogger("registry", slog.LevelInfo),
		byID:   make(map[string]*Subscriber),
		ids:    make(map[Transport]string),
	}
}

// Add registers a transport. Idempotent: a transport already registered
// keeps its id and only refreshes its last-active time.
func (r *Registry) Add(transport Transport) Subscriber {
	r.mu.Lock()
	if id, ok := r.ids[transport]; ok {
		sub := r.byID[id]
		sub.LastActiveAt = time.Now()
		out := *sub
		r.mu.Unlock()
		return out
	}

	now := time.Now()
	sub := &Subscriber{
		ID:           uuid.NewString(),
		Transport:    transport,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	r.byID[sub.ID] = sub
	r.order = append(r.order, sub)
	r.ids[transport] = sub.ID
	count := len(r.order)
	out := *sub
	r.mu.Unlock()

	transport.SetCloseHandler(func() {
		r.Remove(transport)
	})

	ActiveSubscribers.Set(float64(count))
	r.logger.Info("subscriber registered",
		slog.String("subscriber_id", sub.ID),
		slog.String("remote_addr", transport.RemoteAddr()),
	)
	r.hub.Publish(Notification{Kind: NotifyClientConnected, SubscriberID: sub.ID})
	return out
}

// Remove unregisters a transport. No-op when the transport is unknown.
func (r *Registry) Remove(transport Transport) {
	r.mu.Lock()
	id, ok := r.ids[transport]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.ids, transport)
	delete(r.byID, id)
	for i, sub := range r.order {
		if sub.ID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.order)
	r.mu.Unlock()

	ActiveSubscribers.Set(float64(count))
	r.logger.Info("subscriber removed", slog.String("subscriber_id", id))
	r.hub.Publish(Notification{Kind: NotifyClientDisconnected, SubscriberID: id})
}

// Count returns the number of active subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Lookup returns the subscriber with the given id.
func (r *Registry) Lookup(id string) (Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return Subscriber{}, false
	}
	return *sub, true
}

// List returns the active subscribers in registration order.
func (r *Registry) List() []Subscriber {
	return r.snapshot()
}

// touch refreshes a subscriber's last-active time after a delivery.
func (r *Registry) touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.byID[id]; ok {
		sub.LastActiveAt = time.Now()
	}
}

// snapshot returns the active subscribers in registration order.
func (r *Registry) snapshot() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]Subscriber, 0, len(r.order))
	for _, sub := range r.order {
		subs = append(subs, *sub)
	}
	return subs
}
