package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wandcaster/session"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcast(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := New(log)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv.URL)
	defer a.Close()
	b := dial(t, srv.URL)
	defer b.Close()
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, time.Millisecond)

	h.Publish(session.Message{Kind: session.KindTrace, Data: session.TracePoint{X: 1.5, Y: -2, N: 7}})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Kind string             `json:"kind"`
			Data session.TracePoint `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "trace", msg.Kind)
		assert.Equal(t, session.TracePoint{X: 1.5, Y: -2, N: 7}, msg.Data)
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := New(log)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, time.Millisecond)

	h.Broadcast([]byte(`{}`))
}
