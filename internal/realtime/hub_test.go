package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(NewMemoryPresence())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseUint(r.URL.Query().Get("user"), 10, 64)
		_ = hub.Serve(w, r, userID, r.URL.Query().Get("device"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user, device string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&device=" + device
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestHubDeliversOnlyToOwnerRoom(t *testing.T) {
	hub, srv := newHubServer(t)
	ctx := context.Background()

	phone := dial(t, srv, "1", "phone")
	env := readEnvelope(t, phone)
	assert.Equal(t, EventPresence, env["event"])

	stranger := dial(t, srv, "2", "tablet")
	assert.Equal(t, EventPresence, readEnvelope(t, stranger)["event"])

	require.Eventually(t, func() bool {
		devices, err := hub.Online(ctx, 1)
		return err == nil && len(devices) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(1, EventFileUploaded, map[string]interface{}{"id": 7, "filename": "a.png"})
	env = readEnvelope(t, phone)
	assert.Equal(t, EventFileUploaded, env["event"])
	data, ok := env["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a.png", data["filename"])

	require.NoError(t, stranger.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := stranger.ReadMessage()
	assert.Error(t, err, "user 2 must not see user 1 events")
}

func TestHubTracksPresenceAcrossDevices(t *testing.T) {
	hub, srv := newHubServer(t)
	ctx := context.Background()

	laptop := dial(t, srv, "5", "laptop")
	readEnvelope(t, laptop)
	phone := dial(t, srv, "5", "phone")
	readEnvelope(t, phone)

	env := readEnvelope(t, laptop)
	assert.Equal(t, EventPresence, env["event"])
	data := env["data"].(map[string]interface{})
	assert.Equal(t, "phone", data["deviceId"])
	assert.Equal(t, true, data["online"])

	require.Eventually(t, func() bool {
		devices, _ := hub.Online(ctx, 5)
		return len(devices) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, phone.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = phone.Close()

	env = readEnvelope(t, laptop)
	data = env["data"].(map[string]interface{})
	assert.Equal(t, "phone", data["deviceId"])
	assert.Equal(t, false, data["online"])

	devices, err := hub.Online(ctx, 5)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "laptop", devices[0].DeviceID)
}

func TestPublishFallsBackToLocalDelivery(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dial(t, srv, "3", "desk")
	readEnvelope(t, conn)

	var relayed atomic.Int32
	hub.setRelay(func(uint64, []byte) error {
		relayed.Add(1)
		return assert.AnError
	})
	hub.Publish(3, EventMessageNew, map[string]string{"content": "hi"})
	assert.Equal(t, EventMessageNew, readEnvelope(t, conn)["event"])
	assert.Equal(t, int32(1), relayed.Load())
}

func TestMemoryPresence(t *testing.T) {
	p := NewMemoryPresence()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, p.Add(ctx, 1, Device{ConnID: "b", DeviceID: "phone", ConnectedAt: now.Add(time.Second)}))
	require.NoError(t, p.Add(ctx, 1, Device{ConnID: "a", DeviceID: "laptop", ConnectedAt: now}))
	require.NoError(t, p.Add(ctx, 2, Device{ConnID: "c", DeviceID: "tv", ConnectedAt: now}))

	devices, err := p.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "laptop", devices[0].DeviceID)

	require.NoError(t, p.Remove(ctx, 1, "a"))
	require.NoError(t, p.Remove(ctx, 1, "missing"))
	devices, err = p.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "phone", devices[0].DeviceID)
}
