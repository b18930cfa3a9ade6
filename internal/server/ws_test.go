package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	a := dialHub(t, ts.URL)
	b := dialHub(t, ts.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(-35, "disappointed-face")

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, -35.0, msg.Score)
		assert.Equal(t, "disappointed-face", msg.Symbol)
		assert.Equal(t, "😞", msg.Emoji)
		assert.Equal(t, "👎", msg.Indicator.Glyph)
		assert.InDelta(t, 0.05, msg.Indicator.Opacity, 1e-9)
		assert.NotZero(t, msg.Timestamp)
	}
}

func TestHub_ReplaysLastUpdate(t *testing.T) {
	hub := NewHub()
	hub.Publish(80, "laugh-face")

	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts.URL)
	msg := readMessage(t, conn)
	assert.Equal(t, "laugh-face", msg.Symbol)
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() { hub.Publish(1, "smile-face") })
}
