package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

// InstrumentationBridge injects the DOM-tracking script into the page and
// decodes its console side-channel output into normalized events.
type InstrumentationBridge struct {
	session     *cdp.Session
	broadcaster *Broadcaster
	logger      *logging.Logger
	sessionID   string
}

// NewInstrumentationBridge creates the bridge for an attached page session.
func NewInstrumentationBridge(session *cdp.Session, broadcaster *Broadcaster, sessionID string) *InstrumentationBridge {
	return &InstrumentationBridge{
		session:     session,
		broadcaster: broadcaster,
		logger:      logging.NewLogger("instrumentation", slog.LevelInfo).WithSession(sessionID),
		sessionID:   sessionID,
	}
}

// Inject enables the minimal domains the script needs and evaluates it in
// the page context. The completion marker the script logs is not waited on.
// Navigation destroys the page's script context, so Inject re-runs on every
// page load.
func (b *InstrumentationBridge) Inject(ctx context.Context) error {
	for _, method := range []string{"Runtime.enable", "DOM.enable"} {
		if _, err := b.session.Send(ctx, method, nil); err != nil {
			return errors.Wrap(err, errors.ErrCodeInjection, "enabling instrumentation domain").
				WithContext("method", method)
		}
	}

	if _, err := b.session.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression": instrumentationScript,
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeInjection, "evaluating instrumentation script")
	}

	b.logger.Debug("instrumentation script injected")
	return nil
}

// AttachDecoder subscribes to the session's console events and reconstructs
// DOM interaction events from marker-prefixed output. Malformed payloads are
// dropped without affecting subsequent messages. Only the Runtime channel is
// decoded; Console.messageAdded mirrors the same text and decoding both
// would duplicate every interaction.
func (b *InstrumentationBridge) AttachDecoder() {
	b.session.On("Runtime.consoleAPICalled", func(event cdp.Event) {
		b.decodeConsoleAPICall(event.Params)
	})
}

// decodeConsoleAPICall handles Runtime.consoleAPICalled: the marker is the
// first string argument, the JSON payload the second.
func (b *InstrumentationBridge) decodeConsoleAPICall(params json.RawMessage) {
	var call struct {
		Args []struct {
			Type  string `json:"type"`
			Value any    `json:"value"`
		} `json:"args"`
	}
	if err := json.Unmarshal(params, &call); err != nil || len(call.Args) == 0 {
		return
	}

	marker, ok := call.Args[0].Value.(string)
	if !ok || !strings.HasPrefix(marker, markerPrefix) {
		return
	}
	// The completion marker is logged alone, with no payload argument.
	if marker == initializedMarker {
		b.logger.Debug("instrumentation initialized in page")
		return
	}
	if len(call.Args) < 2 {
		return
	}
	payload, ok := call.Args[1].Value.(string)
	if !ok {
		b.reportDecodeFailure("console argument is not a string payload")
		return
	}
	b.decodeInteraction(marker, payload)
}

// decodeInteraction parses the interaction type from the marker and the JSON
// payload, reconstructs the event, and delivers it through the same path as
// native protocol events.
func (b *InstrumentationBridge) decodeInteraction(marker, payload string) {
	interactionType, ok := strings.CutPrefix(marker, interactionMarker)
	if !ok || interactionType == "" {
		return
	}

	var decoded struct {
		Type      string          `json:"type"`
		Element   json.RawMessage `json:"element"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		b.reportDecodeFailure(err.Error())
		return
	}
	if decoded.Type == "" {
		b.reportDecodeFailure("payload missing interaction type")
		return
	}

	method := "DOM.interaction." + strings.ToLower(interactionType)
	event, err := NewEvent(b.sessionID, DomainDOM, method, json.RawMessage(payload))
	if err != nil {
		b.reportDecodeFailure(err.Error())
		return
	}
	if err := b.broadcaster.Broadcast(event); err != nil {
		b.logger.Warn("broadcasting interaction failed", slog.String("error", err.Error()))
	}
}

func (b *InstrumentationBridge) reportDecodeFailure(reason string) {
	DecodeFailuresTotal.Inc()
	b.logger.Debug("dropping malformed instrumentation payload",
		slog.String("reason", reason),
	)
}
