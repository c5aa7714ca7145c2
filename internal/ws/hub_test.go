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

	"github.com/sujalbistaa/whispr/internal/board"
)

func TestHub_PublishReachesClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	likes := 3
	// Registration happens asynchronously; keep publishing until the
	// client sees something.
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	go func() {
		for time.Now().Before(deadline) {
			hub.Publish(board.Event{Type: board.EventCounts, ConfessionID: "c1", Likes: &likes})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got board.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, board.EventCounts, got.Type)
	assert.Equal(t, "c1", got.ConfessionID)
	require.NotNil(t, got.Likes)
	assert.Equal(t, 3, *got.Likes)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.Broadcast)+10; i++ {
			hub.Publish(board.Event{Type: board.EventComment, ConfessionID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
	assert.Len(t, hub.Broadcast, cap(hub.Broadcast))
}
