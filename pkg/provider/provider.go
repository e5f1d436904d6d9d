// Package provider acquires and releases browser protocol sessions.
//
// Two variants exist: Browserbase connects to a remote hosted session via
// session id and API key, Local launches a headless browser process. Both
// convert internal faults into a failed ConnectResult rather than
// propagating them, so the connection manager can treat provider failure
// uniformly.
package provider

import (
	"context"
	"time"

	"github.com/odvcencio/eventproxy/pkg/cdp"
)

// Options parameterizes session acquisition.
type Options struct {
	// SessionID resumes an existing hosted session when set.
	SessionID string

	// APIKey authenticates against the hosted provider.
	APIKey string

	// ProjectID scopes hosted session creation.
	ProjectID string

	// Timeout bounds the whole acquisition, including the websocket dial.
	Timeout time.Duration
}

// Handles are the live resources of an acquired session. All four are
// required; a result missing any of them is treated as a hard failure by the
// connection manager.
type Handles struct {
	// Browser is the connection-level protocol client.
	Browser *cdp.Client

	// BrowserContextID identifies the browser context owning the page.
	BrowserContextID string

	// PageTargetID identifies the page target.
	PageTargetID string

	// Protocol is the flattened session attached to the page target.
	Protocol *cdp.Session
}

// Complete reports whether every required handle is present.
func (h *Handles) Complete() bool {
	return h != nil &&
		h.Browser != nil &&
		h.BrowserContextID != "" &&
		h.PageTargetID != "" &&
		h.Protocol != nil
}

// ConnectResult reports the outcome of a session acquisition.
type ConnectResult struct {
	Success   bool
	Connected bool
	SessionID string
	Handles   *Handles
	// Err carries the normalized failure when Success is false.
	Err error
}

// DisconnectResult reports the outcome of a session release.
type DisconnectResult struct {
	Success   bool
	Connected bool
}

// Provider is the session acquisition capability.
type Provider interface {
	// Connect acquires a browser session. Internal faults are caught and
	// returned as a failed result, never as a panic or raw error.
	Connect(ctx context.Context, opts Options) *ConnectResult

	// Disconnect releases the session's handles in order: protocol session,
	// page, context, browser. Each release is independently fault-tolerant.
	Disconnect(ctx context.Context, handles *Handles) *DisconnectResult
}

func failedResult(err error) *ConnectResult {
	return &ConnectResult{Success: false, Connected: false, Err: err}
}
