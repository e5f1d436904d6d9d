package proxy

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/odvcencio/eventproxy/pkg/bus"
	"github.com/odvcencio/eventproxy/pkg/config"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
	"github.com/odvcencio/eventproxy/pkg/provider"
)

// Engine assembles the event-stream components behind one facade: the
// connection manager, the subscriber registry, the broadcaster, and the
// notification hub.
type Engine struct {
	hub         *Hub
	registry    *Registry
	broadcaster *Broadcaster
	manager     *ConnectionManager
	mirror      bus.Sink
	logger      *logging.Logger
}

// NewEngine wires an engine from configuration.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "validating configuration")
	}

	hub := NewHub()
	registry := NewRegistry(hub)
	broadcaster := NewBroadcaster(registry, hub)

	var sessionProvider provider.Provider
	switch cfg.Provider.Kind {
	case "local":
		sessionProvider = provider.NewLocal(cfg.Provider.LocalChromePath, cfg.Provider.LocalDebugPort)
	default:
		sessionProvider = provider.NewBrowserbase()
	}

	domains := make([]Domain, 0, len(cfg.EnabledDomains))
	for _, name := range cfg.EnabledDomains {
		if !ValidDomain(name) {
			return nil, errors.Newf(errors.ErrCodeInvalidDomain, "unknown protocol domain %q", name)
		}
		domains = append(domains, Domain(name))
	}

	manager := NewConnectionManager(ConnectionOptions{
		Provider:             sessionProvider,
		SessionID:            cfg.Provider.SessionID,
		APIKey:               cfg.Provider.APIKey,
		ProjectID:            cfg.Provider.ProjectID,
		Timeout:              cfg.ConnectionTimeout(),
		EnabledDomains:       domains,
		AutoReconnect:        cfg.Reconnect.Auto,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectDelay:       cfg.ReconnectDelay(),
	}, hub, broadcaster)

	engine := &Engine{
		hub:         hub,
		registry:    registry,
		broadcaster: broadcaster,
		manager:     manager,
		logger:      logging.NewLogger("engine", logging.ParseLevel(cfg.LogLevel)),
	}

	if cfg.Mirror.Enabled {
		sink, err := bus.NewNATSSink(cfg.Mirror.NATSURL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "connecting mirror sink")
		}
		engine.mirror = sink
		broadcaster.SetMirror(sink, cfg.Mirror.Subject)
		engine.logger.Info("event mirror enabled",
			slog.String("subject", cfg.Mirror.Subject),
		)
	}

	return engine, nil
}

// NewEngineFromParts assembles an engine from pre-built components, for
// callers that wire the connection manager themselves.
func NewEngineFromParts(manager *ConnectionManager, registry *Registry, broadcaster *Broadcaster, hub *Hub) *Engine {
	return &Engine{
		hub:         hub,
		registry:    registry,
		broadcaster: broadcaster,
		manager:     manager,
		logger:      logging.NewLogger("engine", slog.LevelInfo),
	}
}

// Connect acquires the browser session.
func (e *Engine) Connect(ctx context.Context) error {
	return e.manager.Connect(ctx)
}

// Disconnect releases the browser session.
func (e *Engine) Disconnect(ctx context.Context, reason string) {
	e.manager.Disconnect(ctx, reason)
}

// SendCommand forwards a protocol command through the active session.
func (e *Engine) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return e.manager.SendCommand(ctx, method, params)
}

// Connection exposes the lifecycle manager.
func (e *Engine) Connection() *ConnectionManager {
	return e.manager
}

// Registry exposes the subscriber registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Hub exposes the notification hub.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// Close disconnects and releases all engine resources.
func (e *Engine) Close(ctx context.Context) {
	e.manager.Disconnect(ctx, "shutdown")
	if e.mirror != nil {
		e.mirror.Close()
	}
	e.hub.Close()
}
