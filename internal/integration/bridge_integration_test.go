package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
)

// wireEvent is the JSON frame pushed to the webview.
type wireEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// invoke posts a command to the bridge and returns the status and body.
func invoke(t *testing.T, baseURL, command, args string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		baseURL+"/invoke/"+command,
		strings.NewReader(args),
	)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, strings.TrimSpace(string(body))
}

// TestBridge_Commands invokes commands through the HTTP bridge of a live backend.
func TestBridge_Commands(t *testing.T) {
	t.Parallel()

	grpcAddr := reservePort(t)
	bridgeAddr := reservePort(t)

	startBackend(t, &config.Config{
		ListenAddress: grpcAddr,
		BridgeAddress: bridgeAddr,
	})

	baseURL := "http://" + bridgeAddr

	code, body := invoke(t, baseURL, "greet", `{"name":"Ada"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `"Hello, Ada! You've been greeted from Go!"`, body)

	code, body = invoke(t, baseURL, "check_for_updates", "")
	require.Equal(t, http.StatusInternalServerError, code)
	require.JSONEq(t, `{"error":"Updates not supported on this platform"}`, body)

	code, _ = invoke(t, baseURL, "reboot", "")
	require.Equal(t, http.StatusNotFound, code)
}

// TestBridge_AvailableEvents receives background check results over the event stream.
func TestBridge_AvailableEvents(t *testing.T) {
	t.Parallel()

	releases := newReleaseServer(t, "9.9.9", []byte("payload"))
	grpcAddr := reservePort(t)
	bridgeAddr := reservePort(t)

	startBackend(t, &config.Config{
		ListenAddress: grpcAddr,
		BridgeAddress: bridgeAddr,
		Endpoints:     []string{releases.URL + "/latest.json"},
		CheckInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+bridgeAddr+"/events", nil)
	require.NoError(t, err)

	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	var frame wireEvent

	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, events.AvailableEvent, frame.Event)

	var info update.Info

	require.NoError(t, json.Unmarshal(frame.Payload, &info))
	require.Equal(t, "9.9.9", info.Version)
	require.True(t, info.Available)
}
