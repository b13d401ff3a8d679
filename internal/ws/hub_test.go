package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detachedClient(h *Hub, topic string) *Client {
	c := &Client{hub: h, topic: topic, userID: "u", send: make(chan []byte, 1), done: make(chan struct{})}
	h.register(c)
	return c
}

func TestPublish_OnlyReachesTopic(t *testing.T) {
	h := NewHub(nil)
	a := detachedClient(h, "c-1")
	b := detachedClient(h, "c-2")

	h.Publish("c-1", "message.created", map[string]string{"body": "hi"})

	select {
	case raw := <-a.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, "message.created", env.Type)
		assert.Equal(t, "c-1", env.Topic)
	default:
		t.Fatal("subscriber did not receive the event")
	}
	assert.Len(t, b.send, 0)
}

func TestPublish_DropsSlowClients(t *testing.T) {
	h := NewHub(nil)
	c := detachedClient(h, "c-1")
	h.Publish("c-1", "x", nil)
	h.Publish("c-1", "x", nil)

	assert.Equal(t, 0, h.Subscribers("c-1"))
	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not closed")
	}
}

func TestServe_DeliversOverWebsocket(t *testing.T) {
	h := NewHub(nil)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(h, conn, "c-1", "u-1").Serve(context.Background())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers("c-1") == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Publish("c-1", "consultation.updated", map[string]string{"status": "ACCEPTED"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "consultation.updated", env.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Subscribers("c-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
