// Package cdp provides a minimal Chrome DevTools Protocol client.
//
// The client speaks the DevTools JSON wire format over a single websocket:
// commands are correlated by id, events arrive unsolicited and are dispatched
// to method-keyed handlers on the read loop goroutine, preserving the order
// the browser emitted them.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/eventproxy/pkg/logging"
)

const writeTimeout = 10 * time.Second

// Conn defines the interface for a websocket connection.
// This abstraction enables testing with mock connections.
type Conn interface {
	// ReadMessage reads the next text message from the connection.
	ReadMessage() ([]byte, error)

	// WriteMessage writes a text message to the connection.
	WriteMessage(data []byte) error

	// Close closes the connection.
	Close() error
}

// wsConn adapts a gorilla websocket connection to Conn. Writes are serialized
// because gorilla connections support one concurrent writer.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Event is a protocol event received from the browser.
type Event struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
}

// EventHandler consumes protocol events. Handlers run on the read loop
// goroutine; they must not block.
type EventHandler func(Event)

// command is the DevTools request wire shape.
type command struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// inbound covers both responses and events; responses carry an id.
type inbound struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *CommandError   `json:"error,omitempty"`
}

// CommandError is a protocol-level command failure.
type CommandError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("cdp command error %d: %s", e.Code, e.Message)
}

// Client is a DevTools protocol client over one websocket connection.
type Client struct {
	conn   Conn
	logger *logging.Logger

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan inbound
	closed  bool

	handlerMu sync.RWMutex
	handlers  map[string][]EventHandler
	anyEvent  []EventHandler

	closeMu      sync.Mutex
	closeHandler func(error)

	done chan struct{}
}

// Dial connects to a DevTools websocket endpoint and starts the read loop.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		// DevTools can emit very large frames (network bodies, DOM dumps).
		ReadBufferSize:  1 << 20,
		WriteBufferSize: 1 << 20,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dialing devtools endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing devtools endpoint: %w", err)
	}
	return NewClient(&wsConn{conn: conn}), nil
}

// NewClient wraps an established connection. Used directly by tests with mock
// connections.
func NewClient(conn Conn) *Client {
	c := &Client{
		conn:     conn,
		logger:   logging.NewLogger("cdp", slog.LevelInfo),
		pending:  make(map[int64]chan inbound),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send issues a protocol command and waits for its response.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.send(ctx, "", method, params)
}

func (c *Client) send(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
		}
		rawParams = data
	}

	id := c.nextID.Add(1)
	respCh := make(chan inbound, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("cdp connection closed")
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(command{ID: id, Method: method, Params: rawParams, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("marshaling command %s: %w", method, err)
	}
	if err := c.conn.WriteMessage(data); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("cdp connection closed while awaiting %s", method)
	}
}

// On registers a handler for a specific event method.
func (c *Client) On(method string, handler EventHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[method] = append(c.handlers[method], handler)
}

// OnAny registers a handler invoked for every event.
func (c *Client) OnAny(handler EventHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.anyEvent = append(c.anyEvent, handler)
}

// OnClose registers a handler invoked once when the read loop terminates.
func (c *Client) OnClose(handler func(error)) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closeHandler = handler
}

// Close tears down the connection. Pending commands fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	var loopErr error
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			loopErr = err
			break
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("discarding unparseable protocol message",
				slog.String("error", err.Error()),
			)
			continue
		}

		if msg.ID != 0 {
			c.mu.Lock()
			respCh, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				respCh <- msg
			}
			continue
		}

		if msg.Method != "" {
			c.dispatch(Event{Method: msg.Method, Params: msg.Params, SessionID: msg.SessionID})
		}
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)

	c.closeMu.Lock()
	handler := c.closeHandler
	c.closeMu.Unlock()
	if handler != nil {
		handler(loopErr)
	}
}

func (c *Client) dispatch(event Event) {
	c.handlerMu.RLock()
	handlers := append([]EventHandler(nil), c.handlers[event.Method]...)
	handlers = append(handlers, c.anyEvent...)
	c.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
