package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/provider"
)

// fakeTransport records delivered frames and simulates open/closed state.
type fakeTransport struct {
	mu           sync.Mutex
	frames       [][]byte
	open         bool
	failWrites   bool
	closeHandler func()
	addr         string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: true, addr: "test:0"}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrites {
		return fmt.Errorf("write failed")
	}
	t.frames = append(t.frames, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) RemoteAddr() string {
	return t.addr
}

func (t *fakeTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *fakeTransport) close() {
	t.mu.Lock()
	t.open = false
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (t *fakeTransport) frameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func (t *fakeTransport) frame(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[i]
}

// scriptedConn is a cdp.Conn that auto-answers every command with an empty
// result and records command methods. Events are injected with emit.
type scriptedConn struct {
	mu       sync.Mutex
	methods  []string
	incoming chan []byte
	closed   bool
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{incoming: make(chan []byte, 64)}
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.incoming
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (c *scriptedConn) WriteMessage(data []byte) error {
	var cmd struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.methods = append(c.methods, cmd.Method)
	c.incoming <- []byte(fmt.Sprintf(`{"id":%d,"result":{}}`, cmd.ID))
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

// emit injects a protocol event as if the browser sent it.
func (c *scriptedConn) emit(method, sessionID, params string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.incoming <- []byte(fmt.Sprintf(`{"method":%q,"sessionId":%q,"params":%s}`, method, sessionID, params))
}

func (c *scriptedConn) recordedMethods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.methods...)
}

const fakeProtoSessionID = "proto-1"

// fakeProvider hands out sessions backed by scripted connections.
type fakeProvider struct {
	mu sync.Mutex

	// failures makes the first N Connect calls fail.
	failures int

	// incomplete returns a success result missing handles.
	incomplete bool

	sessionID   string
	connects    int
	disconnects int
	conns       []*scriptedConn
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessionID: "sess-1"}
}

func (p *fakeProvider) Connect(ctx context.Context, opts provider.Options) *provider.ConnectResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++

	if p.failures > 0 {
		p.failures--
		return &provider.ConnectResult{
			Success: false,
			Err:     errors.New(errors.ErrCodeSessionAcquire, "simulated acquisition failure"),
		}
	}
	if p.incomplete {
		return &provider.ConnectResult{
			Success:   true,
			Connected: true,
			SessionID: p.sessionID,
			Handles:   &provider.Handles{},
		}
	}

	conn := newScriptedConn()
	p.conns = append(p.conns, conn)
	client := cdp.NewClient(conn)
	return &provider.ConnectResult{
		Success:   true,
		Connected: true,
		SessionID: p.sessionID,
		Handles: &provider.Handles{
			Browser:          client,
			BrowserContextID: "ctx-1",
			PageTargetID:     "page-1",
			Protocol:         cdp.NewSession(client, fakeProtoSessionID),
		},
	}
}

func (p *fakeProvider) Disconnect(ctx context.Context, handles *provider.Handles) *provider.DisconnectResult {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	if handles != nil && handles.Browser != nil {
		handles.Browser.Close()
	}
	return &provider.DisconnectResult{Success: true, Connected: false}
}

func (p *fakeProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *fakeProvider) disconnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

func (p *fakeProvider) lastConn() *scriptedConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

// newTestManager assembles a manager over a fake provider with the full
// fan-out path wired.
func newTestManager(p *fakeProvider, domains ...Domain) (*ConnectionManager, *Registry, *Hub) {
	if len(domains) == 0 {
		domains = Domains
	}
	hub := NewHub()
	registry := NewRegistry(hub)
	broadcaster := NewBroadcaster(registry, hub)
	manager := NewConnectionManager(ConnectionOptions{
		Provider:       p,
		EnabledDomains: domains,
	}, hub, broadcaster)
	return manager, registry, hub
}
