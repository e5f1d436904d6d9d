package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
	"github.com/odvcencio/eventproxy/pkg/provider"
)

// State is the connection lifecycle state. Transitions follow
// Disconnected → Connecting → Connected → Disconnected, never skipping.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ConnectionOptions configures the lifecycle manager.
type ConnectionOptions struct {
	Provider  provider.Provider
	SessionID string
	APIKey    string
	ProjectID string

	// Timeout bounds session acquisition; enforcement is delegated to the
	// provider.
	Timeout time.Duration

	EnabledDomains []Domain

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// ConnectionManager owns the session lifecycle. All transitions are
// serialized through one operation mutex, so a disconnect racing an
// in-flight connect waits instead of corrupting shared handles. At most one
// session is active per manager.
type ConnectionManager struct {
	opts        ConnectionOptions
	hub         *Hub
	broadcaster *Broadcaster
	logger      *logging.Logger
	createdAt   time.Time

	// opMu serializes connect/disconnect end to end.
	opMu sync.Mutex

	// stateMu guards the fields below for concurrent readers.
	stateMu    sync.RWMutex
	state      State
	sessionID  string
	handles    *provider.Handles
	bridge     *ProtocolEventBridge
	instrument *InstrumentationBridge

	// gen invalidates stale close handlers and pending reconnect loops.
	// Only mutated under opMu.
	gen int
}

// NewConnectionManager creates a manager in the Disconnected state.
func NewConnectionManager(opts ConnectionOptions, hub *Hub, broadcaster *Broadcaster) *ConnectionManager {
	return &ConnectionManager{
		opts:        opts,
		hub:         hub,
		broadcaster: broadcaster,
		logger:      logging.NewLogger("connection", slog.LevelInfo),
		createdAt:   time.Now(),
		state:       StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// IsConnected reports whether a session is active.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// CreatedAt returns when the manager was constructed.
func (m *ConnectionManager) CreatedAt() time.Time {
	return m.createdAt
}

// SessionID returns the active session id, if any.
func (m *ConnectionManager) SessionID() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.sessionID
}

func (m *ConnectionManager) setState(state State) {
	m.stateMu.Lock()
	from := m.state
	m.state = state
	m.stateMu.Unlock()
	if from != state {
		m.logger.ConnectionStateChange(string(from), string(state))
	}
}

// Connect acquires a session and installs the event bridges. A call while
// Connecting or Connected is a no-op. Only session acquisition (or a result
// missing required handles) is a hard failure; bridge installation faults
// are logged and do not block the transition to Connected.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() != StateDisconnected {
		return nil
	}
	m.setState(StateConnecting)

	if err := m.connectLocked(ctx); err != nil {
		m.setState(StateDisconnected)
		ConnectFailuresTotal.Inc()
		return err
	}
	return nil
}

// connectLocked performs acquisition and installation. Caller holds opMu and
// has already moved to Connecting; caller reverts state on error.
func (m *ConnectionManager) connectLocked(ctx context.Context) error {
	result := m.opts.Provider.Connect(ctx, provider.Options{
		SessionID: m.opts.SessionID,
		APIKey:    m.opts.APIKey,
		ProjectID: m.opts.ProjectID,
		Timeout:   m.opts.Timeout,
	})
	if !result.Success {
		err := result.Err
		if err == nil {
			err = errors.New(errors.ErrCodeSessionAcquire, "provider reported failure without cause")
		}
		return errors.Wrap(err, errors.ErrCodeSessionAcquire, "acquiring session")
	}
	if !result.Handles.Complete() {
		// Release whatever the provider did hand over.
		m.opts.Provider.Disconnect(ctx, result.Handles)
		return errors.New(errors.ErrCodeMissingHandle, "provider result missing required handles")
	}

	handles := result.Handles
	sessionID := result.SessionID

	instrument := NewInstrumentationBridge(handles.Protocol, m.broadcaster, sessionID)
	instrument.AttachDecoder()
	if err := instrument.Inject(ctx); err != nil {
		// Graceful degradation: native events still flow without the
		// in-page instrumentation.
		m.logger.Warn("instrumentation install failed",
			slog.String("error", err.Error()),
		)
	}

	bridge := NewProtocolEventBridge(handles.Protocol, m.broadcaster, instrument, sessionID, m.opts.EnabledDomains)
	bridge.Setup(ctx)

	m.gen++
	gen := m.gen
	handles.Browser.OnClose(func(cause error) {
		go m.handleConnectionLost(gen, cause)
	})

	m.stateMu.Lock()
	m.sessionID = sessionID
	m.handles = handles
	m.bridge = bridge
	m.instrument = instrument
	m.stateMu.Unlock()
	m.setState(StateConnected)

	ConnectsTotal.Inc()
	m.logger.WithSession(sessionID).Info("session connected")
	m.hub.Publish(Notification{Kind: NotifyConnect, SessionID: sessionID})
	return nil
}

// Disconnect releases the session. A call while Disconnected is a no-op.
func (m *ConnectionManager) Disconnect(ctx context.Context, reason string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == StateDisconnected {
		return
	}
	m.teardownLocked(ctx, reason)
}

// teardownLocked releases handles in order (protocol session, page, context,
// browser — each independently fault-tolerant inside the provider), clears
// session fields, and emits the disconnect notification. Caller holds opMu.
func (m *ConnectionManager) teardownLocked(ctx context.Context, reason string) {
	m.stateMu.RLock()
	handles := m.handles
	sessionID := m.sessionID
	m.stateMu.RUnlock()

	if handles != nil {
		m.opts.Provider.Disconnect(ctx, handles)
	}

	m.gen++
	m.stateMu.Lock()
	m.handles = nil
	m.bridge = nil
	m.instrument = nil
	m.sessionID = ""
	m.stateMu.Unlock()
	m.setState(StateDisconnected)

	DisconnectsTotal.Inc()
	m.hub.Publish(Notification{Kind: NotifyDisconnect, SessionID: sessionID, Reason: reason})
}

// SendCommand forwards a protocol command through the active session. It
// fails with a validation fault for methods outside the fixed domain set,
// and with a not-connected fault when no session is active.
func (m *ConnectionManager) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, err := ParseDomain(method); err != nil {
		return nil, err
	}

	m.stateMu.RLock()
	state := m.state
	bridge := m.bridge
	m.stateMu.RUnlock()

	if state != StateConnected || bridge == nil {
		return nil, errors.New(errors.ErrCodeNotConnected, "no active session").
			WithContext("state", string(state))
	}
	return bridge.SendCommand(ctx, method, params)
}

// handleConnectionLost reacts to the browser connection dropping underneath
// a Connected manager: tear down, then optionally run the reconnect
// supervisor. Stale notifications from since-replaced connections are
// ignored via the generation counter.
func (m *ConnectionManager) handleConnectionLost(gen int, cause error) {
	m.opMu.Lock()
	if m.gen != gen || m.State() != StateConnected {
		m.opMu.Unlock()
		return
	}
	if cause != nil {
		m.logger.Warn("browser connection lost", slog.String("error", cause.Error()))
	}
	m.teardownLocked(context.Background(), "connection_lost")
	resumeGen := m.gen
	m.opMu.Unlock()

	if !m.opts.AutoReconnect {
		return
	}
	m.reconnect(resumeGen)
}

// reconnect attempts to restore the session, bounded by the configured
// attempt budget. A user-initiated connect or disconnect in the meantime
// changes the generation and stops the supervisor.
func (m *ConnectionManager) reconnect(resumeGen int) {
	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(m.opts.ReconnectDelay)

		m.opMu.Lock()
		if m.gen != resumeGen || m.State() != StateDisconnected {
			m.opMu.Unlock()
			return
		}
		ReconnectAttemptsTotal.Inc()
		m.logger.Info("reconnect attempt",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.opts.MaxReconnectAttempts),
		)

		m.setState(StateConnecting)
		err := m.connectLocked(context.Background())
		if err == nil {
			m.opMu.Unlock()
			return
		}
		m.setState(StateDisconnected)
		ConnectFailuresTotal.Inc()
		m.logger.Warn("reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		m.opMu.Unlock()
	}
	m.logger.Error("reconnect budget exhausted")
}
