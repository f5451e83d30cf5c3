package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, snapshot func() interface{}) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestNewClientReceivesInitialState(t *testing.T) {
	_, srv := startHub(t, func() interface{} {
		return map[string]string{"phase": "steady"}
	})
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, "state", msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "steady", data["phase"])
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub, srv := startHub(t, func() interface{} { return nil })
	first := dial(t, srv)
	second := dial(t, srv)

	// Drain initial state frames.
	readMessage(t, first)
	readMessage(t, second)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastProgress(map[string]string{"component": "system_metrics"})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, "progress", msg.Type)
	}
}

func TestRequestStateReturnsSnapshot(t *testing.T) {
	calls := 0
	_, srv := startHub(t, func() interface{} {
		calls++
		return map[string]int{"calls": calls}
	})
	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "requestState"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "state", msg.Type)
}

func TestPingGetsPong(t *testing.T) {
	_, srv := startHub(t, func() interface{} { return nil })
	conn := dial(t, srv)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "pong", msg.Type)
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	hub, srv := startHub(t, func() interface{} { return nil })
	conn := dial(t, srv)
	readMessage(t, conn)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}
