// Package bus provides the event mirror sink abstraction.
// Broadcast frames can be mirrored onto a message bus so out-of-process
// consumers receive the same stream as websocket subscribers. The default
// implementation uses NATS, with an in-memory option for testing.
package bus

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when publishing on a closed sink.
	ErrClosed = errors.New("sink closed")
)

// Sink receives every serialized event frame published by the broadcaster.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Publish sends one serialized frame to the given subject.
	// Returns immediately; does not wait for consumer delivery.
	Publish(ctx context.Context, subject string, frame []byte) error

	// Close shuts down the sink.
	Close() error
}
