package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuetrack/engine/internal/aggregator"
)

func startTestHub(t *testing.T) (*Hub, *httptest.Server, string) {
	t.Helper()
	h := NewHub("v1", nil)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Upgrade(w, r, upgrader)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return h, srv, url
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientReceivesBroadcastFrame(t *testing.T) {
	h, _, url := startTestHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.BroadcastFrame(aggregator.Frame{VenueID: "v1"})

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"frame"`)
}

func TestNewClientGetsLastFrameSnapshot(t *testing.T) {
	h, _, url := startTestHub(t)
	h.BroadcastFrame(aggregator.Frame{VenueID: "v1"})

	conn := dial(t, url)
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"frame"`)
}

func TestClientDisconnectDecrementsCount(t *testing.T) {
	h, _, url := startTestHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRegistryReturnsSameHubForVenue(t *testing.T) {
	r := NewRegistry(nil)
	a := r.HubFor("v1")
	b := r.HubFor("v1")
	assert.Same(t, a, b)

	c := r.HubFor("v2")
	assert.NotSame(t, a, c)

	r.Remove("v1")
	d := r.HubFor("v1")
	assert.NotSame(t, a, d)
}
