package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

// chromeCandidates are tried in order when no binary path is configured.
var chromeCandidates = []string{
	"google-chrome",
	"chromium",
	"chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// Local launches a headless browser process and connects to its DevTools
// endpoint.
type Local struct {
	chromePath string
	debugPort  int
	logger     *logging.Logger

	cmd     *exec.Cmd
	dataDir string
}

// NewLocal creates the local provider. chromePath may be empty to probe
// well-known binaries; debugPort must be a free local port.
func NewLocal(chromePath string, debugPort int) *Local {
	return &Local{
		chromePath: chromePath,
		debugPort:  debugPort,
		logger:     logging.NewLogger("provider.local", slog.LevelInfo),
	}
}

// Connect launches the browser, waits for its DevTools endpoint, dials it
// and attaches to the initial page target.
func (p *Local) Connect(ctx context.Context, opts Options) *ConnectResult {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	binary, err := p.resolveBinary()
	if err != nil {
		return failedResult(errors.Wrap(err, errors.ErrCodeProviderFailure, "locating browser binary"))
	}

	dataDir, err := os.MkdirTemp("", "eventproxy-chrome-")
	if err != nil {
		return failedResult(errors.Wrap(err, errors.ErrCodeProviderFailure, "creating profile directory"))
	}

	cmd := exec.Command(binary,
		"--headless=new",
		"--no-first-run",
		"--no-default-browser-check",
		fmt.Sprintf("--remote-debugging-port=%d", p.debugPort),
		fmt.Sprintf("--user-data-dir=%s", dataDir),
		"about:blank",
	)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dataDir)
		return failedResult(errors.Wrap(err, errors.ErrCodeProviderFailure, "launching browser"))
	}
	p.cmd = cmd
	p.dataDir = dataDir

	wsURL, err := p.waitForEndpoint(ctx)
	if err != nil {
		p.stopProcess()
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "waiting for devtools endpoint"))
	}

	client, err := cdp.Dial(ctx, wsURL)
	if err != nil {
		p.stopProcess()
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "dialing devtools endpoint"))
	}

	handles, err := attachPage(ctx, client, p.logger)
	if err != nil {
		client.Close()
		p.stopProcess()
		return failedResult(errors.Wrap(err, errors.ErrCodeSessionAcquire, "attaching to page"))
	}

	sessionID := ulid.Make().String()
	p.logger.Info("local browser session started",
		slog.String("session_id", sessionID),
		slog.String("binary", binary),
		slog.Int("debug_port", p.debugPort),
	)

	return &ConnectResult{
		Success:   true,
		Connected: true,
		SessionID: sessionID,
		Handles:   handles,
	}
}

// Disconnect releases the handles and stops the browser process.
func (p *Local) Disconnect(ctx context.Context, handles *Handles) *DisconnectResult {
	releaseHandles(ctx, handles, p.logger)
	p.stopProcess()
	return &DisconnectResult{Success: true, Connected: false}
}

func (p *Local) resolveBinary() (string, error) {
	if p.chromePath != "" {
		return p.chromePath, nil
	}
	for _, candidate := range chromeCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no chrome binary found (tried %v)", chromeCandidates)
}

// waitForEndpoint polls the DevTools discovery endpoint until the browser
// reports its websocket URL.
func (p *Local) waitForEndpoint(ctx context.Context) (string, error) {
	versionURL := fmt.Sprintf("http://127.0.0.1:%d/json/version", p.debugPort)
	httpClient := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			continue
		}

		var version struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		err = json.NewDecoder(resp.Body).Decode(&version)
		resp.Body.Close()
		if err != nil || version.WebSocketDebuggerURL == "" {
			continue
		}
		return version.WebSocketDebuggerURL, nil
	}
}

func (p *Local) stopProcess() {
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.Warn("killing browser process failed", slog.String("error", err.Error()))
		}
		p.cmd.Wait()
		p.cmd = nil
	}
	if p.dataDir != "" {
		os.RemoveAll(p.dataDir)
		p.dataDir = ""
	}
}
