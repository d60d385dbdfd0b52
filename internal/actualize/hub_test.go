package actualize

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

func startHub(t *testing.T, opts ...HubOption) (*Hub, string) {
	t.Helper()
	opts = append([]HubOption{WithHubLogger(world.NewDiscardLogger())}, opts...)
	h := NewHub(opts...)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, h *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.Viewers() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func TestHub_BroadcastsToAllViewers(t *testing.T) {
	h, url := startHub(t)
	a := dial(t, h, url, 1)
	b := dial(t, h, url, 2)

	subs := []world.Submission{{Subject: "S/L/E", Kind: "Sprite", Data: value.Obj(value.P("Health", value.Int(3)))}}
	require.NoError(t, h.Flush(4, subs))

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		assert.Equal(t, int64(4), f.Tick)
		require.Len(t, f.Submissions, 1)
		assert.Equal(t, world.Address("S/L/E"), f.Submissions[0].Subject)
		assert.Equal(t, value.Int(3), f.Submissions[0].Data["Health"])
	}
}

func TestHub_LateViewerGetsLatestFrame(t *testing.T) {
	h, url := startHub(t)
	require.NoError(t, h.Flush(1, nil))
	require.NoError(t, h.Flush(2, nil))

	conn := dial(t, h, url, 1)
	assert.Equal(t, int64(2), readFrame(t, conn).Tick)
}

func TestHub_ViewerDisconnect(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, h, url, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return h.Viewers() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Flush(1, nil))
}

func TestHub_SlowViewerDropsFrames(t *testing.T) {
	h, url := startHub(t, WithBacklog(1))
	_ = dial(t, h, url, 1)

	// Nothing reads, so after the socket buffers fill the backlog overflows.
	big := make([]world.Submission, 200)
	for i := range big {
		big[i] = world.Submission{Subject: "S", Kind: strings.Repeat("x", 512)}
	}
	require.Eventually(t, func() bool {
		_ = h.Flush(1, big)
		return h.Dropped() > 0
	}, 5*time.Second, time.Millisecond)
}

func TestHub_CloseDisconnectsViewers(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, h, url, 1)

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.Viewers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
