package proxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/eventproxy/pkg/errors"
)

func TestParseDomain(t *testing.T) {
	tests := []struct {
		method   string
		want     Domain
		wantCode errors.ErrorCode
	}{
		{method: "Page.loadEventFired", want: DomainPage},
		{method: "Network.requestWillBeSent", want: DomainNetwork},
		{method: "DOM.documentUpdated", want: DomainDOM},
		{method: "Runtime.consoleAPICalled", want: DomainRuntime},
		{method: "Console.messageAdded", want: DomainConsole},
		{method: "Bluetooth.enable", wantCode: errors.ErrCodeInvalidDomain},
		{method: "noPrefix", wantCode: errors.ErrCodeInvalidInput},
		{method: ".enable", wantCode: errors.ErrCodeInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			domain, err := ParseDomain(tc.method)
			if tc.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, domain)
		})
	}
}

func TestNewEventRejectsUnknownDomain(t *testing.T) {
	_, err := NewEvent("sess", Domain("Bluetooth"), "Bluetooth.on", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidDomain, errors.GetCode(err))
}

func TestNewEventStampsEnvelope(t *testing.T) {
	event, err := NewEvent("sess-1", DomainPage, "Page.loadEventFired", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, "browser", event.Type)
	assert.NotZero(t, event.Timestamp)
}

func TestMarshalFrameShape(t *testing.T) {
	event, err := NewEvent("sess-1", DomainNetwork, "Network.responseReceived", json.RawMessage(`{"status":200}`))
	require.NoError(t, err)

	data, err := MarshalFrame(event)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	inner, ok := decoded["event"]
	require.True(t, ok, "frame must wrap the envelope under \"event\"")
	assert.Equal(t, "sess-1", inner["browserbaseSessionId"])
	assert.Equal(t, "browser", inner["type"])
	assert.Equal(t, "Network", inner["domain"])
	assert.Equal(t, "Network.responseReceived", inner["method"])
	assert.Equal(t, map[string]any{"status": float64(200)}, inner["params"])
	assert.NotZero(t, inner["timestamp"])
}

func TestMarshalFrameOmitsEmptySessionID(t *testing.T) {
	event, err := NewEvent("", DomainPage, "Page.loadEventFired", nil)
	require.NoError(t, err)

	data, err := MarshalFrame(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "browserbaseSessionId")
}
