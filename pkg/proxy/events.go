// Package proxy implements the event-stream engine: session lifecycle,
// protocol event bridging, in-page instrumentation, and subscriber fan-out.
package proxy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/odvcencio/eventproxy/pkg/errors"
)

// Domain is a protocol event namespace. Events outside the fixed set are
// rejected.
type Domain string

const (
	DomainPage    Domain = "Page"
	DomainNetwork Domain = "Network"
	DomainDOM     Domain = "DOM"
	DomainRuntime Domain = "Runtime"
	DomainConsole Domain = "Console"
)

// Domains is the fixed domain set, in enable order.
var Domains = []Domain{DomainPage, DomainNetwork, DomainDOM, DomainRuntime, DomainConsole}

// ValidDomain reports whether name is in the fixed domain set.
func ValidDomain(name string) bool {
	for _, d := range Domains {
		if string(d) == name {
			return true
		}
	}
	return false
}

// ParseDomain resolves the domain prefix of a protocol method
// ("Page.loadEventFired" → Page). Unknown prefixes yield a validation fault.
func ParseDomain(method string) (Domain, error) {
	prefix, _, found := strings.Cut(method, ".")
	if !found || prefix == "" {
		return "", errors.Newf(errors.ErrCodeInvalidInput, "method %q has no domain prefix", method)
	}
	if !ValidDomain(prefix) {
		return "", errors.Newf(errors.ErrCodeInvalidDomain, "unknown protocol domain %q", prefix)
	}
	return Domain(prefix), nil
}

// Event is the immutable envelope relayed to subscribers.
type Event struct {
	SessionID string          `json:"browserbaseSessionId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Type      string          `json:"type"`
	Domain    Domain          `json:"domain"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
}

// NewEvent builds an envelope stamped with the current time. The domain must
// be in the fixed set or a validation fault is returned.
func NewEvent(sessionID string, domain Domain, method string, params json.RawMessage) (Event, error) {
	if !ValidDomain(string(domain)) {
		return Event{}, errors.Newf(errors.ErrCodeInvalidDomain, "unknown protocol domain %q", domain)
	}
	if params == nil {
		params = json.RawMessage("null")
	}
	return Event{
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Type:      "browser",
		Domain:    domain,
		Method:    method,
		Params:    params,
	}, nil
}

// frame is the wire shape delivered to subscribers: one frame per event.
type frame struct {
	Event Event `json:"event"`
}

// MarshalFrame serializes the envelope into its delivery frame.
func MarshalFrame(event Event) ([]byte, error) {
	data, err := json.Marshal(frame{Event: event})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "marshaling event frame")
	}
	return data, nil
}
