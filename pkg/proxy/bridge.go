package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

// bridgedMethods is the fixed native listener set. Every listed event is
// normalized and relayed; everything else is ignored.
var bridgedMethods = []string{
	"Page.loadEventFired",
	"Page.frameNavigated",
	"Network.requestWillBeSent",
	"Network.responseReceived",
	"Console.messageAdded",
	"Runtime.consoleAPICalled",
	"Runtime.exceptionThrown",
	"DOM.documentUpdated",
}

// ProtocolEventBridge enables protocol domains on the attached session,
// registers the fixed native listeners, and normalizes their events into
// envelopes for fan-out.
type ProtocolEventBridge struct {
	session     *cdp.Session
	broadcaster *Broadcaster
	instrument  *InstrumentationBridge
	logger      *logging.Logger
	sessionID   string
	domains     []Domain
}

// NewProtocolEventBridge creates the bridge. instrument may be nil when
// instrumentation failed to install; the load hook is then skipped.
func NewProtocolEventBridge(session *cdp.Session, broadcaster *Broadcaster, instrument *InstrumentationBridge, sessionID string, domains []Domain) *ProtocolEventBridge {
	return &ProtocolEventBridge{
		session:     session,
		broadcaster: broadcaster,
		instrument:  instrument,
		logger:      logging.NewLogger("bridge", slog.LevelInfo).WithSession(sessionID),
		sessionID:   sessionID,
		domains:     domains,
	}
}

// Setup enables each configured domain and registers the fixed listeners.
// Per-domain enable failures are logged and skipped, never fatal.
func (b *ProtocolEventBridge) Setup(ctx context.Context) {
	for _, domain := range b.domains {
		method := string(domain) + ".enable"
		if _, err := b.session.Send(ctx, method, nil); err != nil {
			fault := errors.Wrap(err, errors.ErrCodeDomainEnable, "enabling protocol domain").
				WithContext("domain", string(domain))
			b.logger.Warn("domain enable failed, skipping",
				slog.String("domain", string(domain)),
				slog.String("error", fault.Error()),
			)
			continue
		}
	}

	for _, method := range bridgedMethods {
		method := method
		b.session.On(method, func(event cdp.Event) {
			b.relay(method, event.Params)
		})
	}

	// Navigation destroys the page's script context, so every page load
	// re-triggers instrumentation injection.
	if b.instrument != nil {
		b.session.On("Page.loadEventFired", func(cdp.Event) {
			go b.reinject()
		})
	}
}

// relay normalizes a native protocol event and delivers it to the
// broadcaster, which also publishes it on the internal notification channel.
func (b *ProtocolEventBridge) relay(method string, params json.RawMessage) {
	domain, err := ParseDomain(method)
	if err != nil {
		b.logger.Warn("rejecting event with unknown domain",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return
	}

	event, err := NewEvent(b.sessionID, domain, method, params)
	if err != nil {
		b.logger.Warn("normalizing event failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := b.broadcaster.Broadcast(event); err != nil {
		b.logger.Warn("broadcasting event failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
}

func (b *ProtocolEventBridge) reinject() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := b.instrument.Inject(ctx); err != nil {
		b.logger.Warn("re-injecting instrumentation failed", slog.String("error", err.Error()))
	}
}

// SendCommand forwards an arbitrary protocol command through the session.
func (b *ProtocolEventBridge) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	result, err := b.session.Send(ctx, method, params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolCommand, "protocol command failed").
			WithContext("method", method)
	}
	return result, nil
}
