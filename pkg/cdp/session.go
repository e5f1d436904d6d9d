package cdp

import (
	"context"
	"encoding/json"
)

// Session is a flattened protocol session attached to one target. Commands
// and event subscriptions are scoped by the DevTools session id.
type Session struct {
	client *Client
	id     string
}

// NewSession scopes a client to an attached target session.
func NewSession(client *Client, sessionID string) *Session {
	return &Session{client: client, id: sessionID}
}

// ID returns the DevTools session id.
func (s *Session) ID() string {
	return s.id
}

// Client returns the underlying connection-level client.
func (s *Session) Client() *Client {
	return s.client
}

// Send issues a protocol command within this session.
func (s *Session) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return s.client.send(ctx, s.id, method, params)
}

// On registers a handler for events emitted by this session only.
func (s *Session) On(method string, handler EventHandler) {
	s.client.On(method, func(event Event) {
		if event.SessionID == s.id {
			handler(event)
		}
	})
}
