package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink implements Sink using NATS core publish.
type NATSSink struct {
	conn   *nats.Conn
	closed atomic.Bool
}

// NewNATSSink connects to a NATS server.
func NewNATSSink(url string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("eventproxy-mirror"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSink{conn: conn}, nil
}

// NewNATSSinkFromConn wraps an existing connection.
// Useful for testing with an embedded NATS server.
func NewNATSSinkFromConn(conn *nats.Conn) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Publish(ctx context.Context, subject string, frame []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.conn.Publish(subject, frame)
}

func (s *NATSSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conn.Close()
	return nil
}
