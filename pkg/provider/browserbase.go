package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

const defaultBrowserbaseAPI = "https://api.browserbase.com"

// Browserbase acquires hosted sessions from the Browserbase API and connects
// to them over the DevTools websocket endpoint.
type Browserbase struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewBrowserbase creates the remote provider.
func NewBrowserbase() *Browserbase {
	return &Browserbase{
		baseURL:    defaultBrowserbaseAPI,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewLogger("provider.browserbase", slog.LevelInfo),
	}
}

// NewBrowserbaseWithEndpoint overrides the API base URL. Used by tests.
func NewBrowserbaseWithEndpoint(baseURL string) *Browserbase {
	p := NewBrowserbase()
	p.baseURL = baseURL
	return p
}

type sessionResource struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ConnectURL string `json:"connectUrl"`
}

// Connect resumes the configured session or creates a new one, then dials
// its DevTools endpoint and attaches to the page target.
func (p *Browserbase) Connect(ctx context.Context, opts Options) *ConnectResult {
	if opts.APIKey == "" {
		return failedResult(errors.New(errors.ErrCodeProviderFailure, "browserbase API key is required"))
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		session *sessionResource
		err     error
	)
	if opts.SessionID != "" {
		session, err = p.getSession(ctx, opts.APIKey, opts.SessionID)
	} else {
		session, err = p.createSession(ctx, opts.APIKey, opts.ProjectID)
	}
	if err != nil {
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "acquiring hosted session"))
	}
	if session.ConnectURL == "" {
		return failedResult(errors.Newf(errors.ErrCodeSessionAcquire, "session %s has no connect URL (status %s)", session.ID, session.Status))
	}

	client, err := cdp.Dial(ctx, session.ConnectURL)
	if err != nil {
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "dialing session endpoint"))
	}

	handles, err := attachPage(ctx, client, p.logger)
	if err != nil {
		client.Close()
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "attaching to page"))
	}

	p.logger.Info("hosted session connected",
		slog.String("session_id", session.ID),
	)

	return &ConnectResult{
		Success:   true,
		Connected: true,
		SessionID: session.ID,
		Handles:   handles,
	}
}

// Disconnect releases the session handles. The hosted session itself keeps
// running server-side until it expires or is stopped through the API.
func (p *Browserbase) Disconnect(ctx context.Context, handles *Handles) *DisconnectResult {
	releaseHandles(ctx, handles, p.logger)
	return &DisconnectResult{Success: true, Connected: false}
}

func (p *Browserbase) getSession(ctx context.Context, apiKey, sessionID string) (*sessionResource, error) {
	return p.doSessionRequest(ctx, http.MethodGet, fmt.Sprintf("%s/v1/sessions/%s", p.baseURL, sessionID), apiKey, nil)
}

func (p *Browserbase) createSession(ctx context.Context, apiKey, projectID string) (*sessionResource, error) {
	body, err := json.Marshal(map[string]string{"projectId": projectID})
	if err != nil {
		return nil, err
	}
	return p.doSessionRequest(ctx, http.MethodPost, p.baseURL+"/v1/sessions", apiKey, body)
}

func (p *Browserbase) doSessionRequest(ctx context.Context, method, url, apiKey string, body []byte) (*sessionResource, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-BB-API-Key", apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("browserbase API returned %d: %s", resp.StatusCode, string(data))
	}

	var session sessionResource
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("parsing session resource: %w", err)
	}
	return &session, nil
}
