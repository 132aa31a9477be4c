package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rtcall/internal/config"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitMembers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Rooms()[room] == n }, 2*time.Second, 10*time.Millisecond)
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRelayForwardsToOthersInRoom(t *testing.T) {
	hub, srv := startHub(t)

	alice := dial(t, srv, "/signal/demo")
	bob := dial(t, srv, "/signal/demo")
	eve := dial(t, srv, "/signal/other")
	waitMembers(t, hub, "demo", 2)
	waitMembers(t, hub, "other", 1)

	frame := `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"}}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(frame)))

	assert.Equal(t, frame, readText(t, bob))
	assertSilent(t, alice)
	assertSilent(t, eve)
}

func TestRelayDefaultRoom(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv, "/signal")
	b := dial(t, srv, "/signal/"+config.DefaultRoom)
	waitMembers(t, hub, config.DefaultRoom, 2)

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, "hello", readText(t, a))
}

func TestRelayPreservesOrder(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv, "/signal/r")
	b := dial(t, srv, "/signal/r")
	waitMembers(t, hub, "r", 2)

	for _, m := range []string{"1", "2", "3", "4"} {
		require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(m)))
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, want, readText(t, b))
	}
}

func TestRelayLeaveEmptiesRoom(t *testing.T) {
	hub, srv := startHub(t)

	a := dial(t, srv, "/signal/r")
	waitMembers(t, hub, "r", 1)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		_, ok := hub.Rooms()["r"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServerShutsDownGracefully(t *testing.T) {
	s := NewServer(config.RelayConfig{Listen: "127.0.0.1:0"})
	addr, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/signal/x", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitMembers(t, s.hub, "x", 1)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not shut down")
	}

	// The client is disconnected by the shutdown.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
