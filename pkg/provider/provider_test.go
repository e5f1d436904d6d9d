package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/eventproxy/pkg/errors"
)

// fakeDevtools serves a minimal DevTools websocket: answers target discovery
// and attach commands, records everything else.
type fakeDevtools struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	commands chan string
}

func newFakeDevtools(t *testing.T) *fakeDevtools {
	t.Helper()
	f := &fakeDevtools{commands: make(chan string, 64)}
	mux := http.NewServeMux()
	mux.HandleFunc("/devtools", f.handle)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDevtools) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/devtools"
}

func (f *fakeDevtools) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if json.Unmarshal(data, &cmd) != nil {
			continue
		}
		f.commands <- cmd.Method

		var result string
		switch cmd.Method {
		case "Target.getTargets":
			result = `{"targetInfos":[{"targetId":"page-1","type":"page","url":"about:blank","browserContextId":"ctx-1"}]}`
		case "Target.attachToTarget":
			result = `{"sessionId":"devtools-sess-1"}`
		default:
			result = `{}`
		}
		resp := fmt.Sprintf(`{"id":%d,"result":%s}`, cmd.ID, result)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
			return
		}
	}
}

func newBrowserbaseAPI(t *testing.T, devtoolsURL string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-BB-API-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":         "bb-sess-new",
			"status":     "RUNNING",
			"connectUrl": devtoolsURL,
		})
	})
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":         r.PathValue("id"),
			"status":     "RUNNING",
			"connectUrl": devtoolsURL,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBrowserbaseConnectCreatesSession(t *testing.T) {
	devtools := newFakeDevtools(t)
	api := newBrowserbaseAPI(t, devtools.wsURL())

	p := NewBrowserbaseWithEndpoint(api.URL)
	result := p.Connect(context.Background(), Options{
		APIKey:    "bb_key",
		ProjectID: "proj-1",
		Timeout:   5 * time.Second,
	})

	require.True(t, result.Success, "connect failed: %v", result.Err)
	assert.True(t, result.Connected)
	assert.Equal(t, "bb-sess-new", result.SessionID)
	require.True(t, result.Handles.Complete(), "incomplete handles")
	assert.Equal(t, "page-1", result.Handles.PageTargetID)
	assert.Equal(t, "ctx-1", result.Handles.BrowserContextID)
	assert.Equal(t, "devtools-sess-1", result.Handles.Protocol.ID())

	p.Disconnect(context.Background(), result.Handles)
}

func TestBrowserbaseConnectResumesSession(t *testing.T) {
	devtools := newFakeDevtools(t)
	api := newBrowserbaseAPI(t, devtools.wsURL())

	p := NewBrowserbaseWithEndpoint(api.URL)
	result := p.Connect(context.Background(), Options{
		APIKey:    "bb_key",
		SessionID: "bb-sess-existing",
		Timeout:   5 * time.Second,
	})

	require.True(t, result.Success, "connect failed: %v", result.Err)
	assert.Equal(t, "bb-sess-existing", result.SessionID)

	p.Disconnect(context.Background(), result.Handles)
}

func TestBrowserbaseConnectMissingAPIKey(t *testing.T) {
	p := NewBrowserbase()
	result := p.Connect(context.Background(), Options{})

	assert.False(t, result.Success)
	assert.False(t, result.Connected)
	require.Error(t, result.Err)
	assert.Equal(t, errors.ErrCodeProviderFailure, errors.GetCode(result.Err))
}

func TestBrowserbaseConnectAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewBrowserbaseWithEndpoint(server.URL)
	result := p.Connect(context.Background(), Options{APIKey: "bb_key", Timeout: 2 * time.Second})

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Equal(t, errors.ErrCodeSessionAcquire, errors.GetCode(result.Err))
}

func TestBrowserbaseConnectUnreachableEndpoint(t *testing.T) {
	api := newBrowserbaseAPI(t, "ws://127.0.0.1:1/devtools")

	p := NewBrowserbaseWithEndpoint(api.URL)
	result := p.Connect(context.Background(), Options{APIKey: "bb_key", Timeout: 2 * time.Second})

	assert.False(t, result.Success)
	assert.Equal(t, errors.ErrCodeSessionAcquire, errors.GetCode(result.Err))
}

func TestHandlesComplete(t *testing.T) {
	assert.False(t, (&Handles{}).Complete())
	var nilHandles *Handles
	assert.False(t, nilHandles.Complete())
}

func TestDisconnectNilHandles(t *testing.T) {
	p := NewBrowserbase()
	result := p.Disconnect(context.Background(), nil)
	assert.True(t, result.Success)
	assert.False(t, result.Connected)
}
