package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsTransport adapts a websocket connection to the registry's Transport
// interface. Writes are serialized; concurrent gorilla writes corrupt the
// stream.
type wsTransport struct {
	conn       *websocket.Conn
	remoteAddr string

	writeMu sync.Mutex
	closed  atomic.Bool

	handlerMu    sync.Mutex
	closeHandler func()
}

func newWSTransport(conn *websocket.Conn, remoteAddr string) *wsTransport {
	return &wsTransport{conn: conn, remoteAddr: remoteAddr}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) IsOpen() bool {
	return !t.closed.Load()
}

func (t *wsTransport) RemoteAddr() string {
	return t.remoteAddr
}

func (t *wsTransport) SetCloseHandler(handler func()) {
	t.handlerMu.Lock()
	t.closeHandler = handler
	t.handlerMu.Unlock()
}

// markClosed flips the transport closed exactly once and fires the close
// handler so the registry drops the subscriber.
func (t *wsTransport) markClosed() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.handlerMu.Lock()
	handler := t.closeHandler
	t.handlerMu.Unlock()
	if handler != nil {
		handler()
	}
}

// readPump consumes client frames until the connection drops. Subscribers
// are receive-only: inbound payloads are discarded, but the read loop is
// what detects the peer going away and keeps pong handling alive.
func (t *wsTransport) readPump() {
	defer func() {
		t.markClosed()
		t.conn.Close()
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingPump keeps the connection alive through idle stretches.
func (t *wsTransport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if t.closed.Load() {
			return
		}
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := t.conn.WriteMessage(websocket.PingMessage, nil)
		t.writeMu.Unlock()
		if err != nil {
			t.markClosed()
			return
		}
	}
}
