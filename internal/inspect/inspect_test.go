package inspect

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *Hub) (string, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	return url, srv.Close
}

func TestPublishDeliversEventToConnectedClient(t *testing.T) {
	h := NewHub(8)
	url, closeSrv := newTestServer(t, h)
	defer closeSrv()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	h.Publish(EventJoinAccepted, map[string]string{"dev_eui": "0102030405060708"})

	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, EventJoinAccepted, got.Type)
}

func TestCountDropsOnDisconnect(t *testing.T) {
	h := NewHub(8)
	url, closeSrv := newTestServer(t, h)
	defer closeSrv()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, time.Millisecond)
}

func TestPublishWithNoClientsDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	done := make(chan struct{})
	go func() {
		h.Publish(EventSessionState, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no connected clients")
	}
}
