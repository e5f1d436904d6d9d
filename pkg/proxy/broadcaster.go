package proxy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/odvcencio/eventproxy/pkg/bus"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

// Broadcaster fans normalized events out to every registered subscriber and
// optionally mirrors them onto a message bus. Fan-out for one event completes
// before the next event's fan-out begins; a mutex serializes the whole
// delivery pass so subscribers observe events in session order.
type Broadcaster struct {
	registry *Registry
	hub      *Hub
	logger   *logging.Logger

	mu            sync.Mutex
	mirror        bus.Sink
	mirrorSubject string
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, hub *Hub) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		hub:      hub,
		logger:   logging.NewLogger("broadcaster", slog.LevelInfo),
	}
}

// SetMirror mirrors every broadcast frame to sink on the given subject.
func (b *Broadcaster) SetMirror(sink bus.Sink, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = sink
	b.mirrorSubject = subject
}

// Broadcast serializes the envelope once and delivers it to every subscriber
// whose transport is open. Closed transports are pruned instead of written
// to; one subscriber's delivery failure never blocks delivery to others.
func (b *Broadcaster) Broadcast(event Event) error {
	data, err := MarshalFrame(event)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, sub := range b.registry.snapshot() {
		transport := sub.Transport
		if !transport.IsOpen() {
			b.registry.Remove(transport)
			continue
		}
		if err := transport.WriteMessage(data); err != nil {
			DeliveryFailuresTotal.Inc()
			b.logger.Warn("delivery failed, pruning subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("error", err.Error()),
			)
			b.registry.Remove(transport)
			continue
		}
		b.registry.touch(sub.ID)
		delivered++
		FramesSentTotal.Inc()
	}

	EventsRelayedTotal.WithLabelValues(string(event.Domain)).Inc()
	b.logger.EventBroadcast(event.Method, delivered)
	b.hub.Publish(Notification{Kind: NotifyEvent, SessionID: event.SessionID, Event: &event})

	if b.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.mirror.Publish(ctx, b.mirrorSubject, data); err != nil {
			b.logger.Warn("mirror publish failed", slog.String("error", err.Error()))
		}
		cancel()
	}
	return nil
}
