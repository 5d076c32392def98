package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.Default(), observability.NewMetricsForTesting())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHub_Subscribe(t *testing.T) {
	hub := startHub(t)

	var (
		mu  sync.Mutex
		got []Message
	)
	unsubscribe := hub.Subscribe("delhi", func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m)
	})

	a := testAlert("a1", 80)
	require.NoError(t, hub.Send(context.Background(), "delhi", Message{Type: EventAlertCreated, Alert: &a}))
	require.NoError(t, hub.Send(context.Background(), "mumbai", Message{Type: EventAlertCreated, Alert: &a}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	unsubscribe()
	require.NoError(t, hub.Send(context.Background(), "delhi", Message{Type: EventAlertUpdated, Alert: &a}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
}

func TestHub_WebsocketRoundTrip(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?city=Mumbai"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	a := testAlert("a1", 80)
	require.NoError(t, hub.Send(context.Background(), "mumbai", Message{Type: EventAlertCreated, Channel: "mumbai", Alert: &a}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, EventAlertCreated, msg.Type)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, "a1", msg.Alert.ID)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SendAfterClose(t *testing.T) {
	hub := NewHub(slog.Default(), observability.NewMetricsForTesting())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// fill the buffer so Send has to observe the closed hub
	for range cap(hub.broadcast) {
		hub.broadcast <- broadcast{}
	}
	err := hub.Send(context.Background(), GlobalChannel, Message{Type: EventAlertCreated})
	assert.ErrorIs(t, err, ErrHubClosed)
}
