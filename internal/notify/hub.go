package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/gorilla/websocket"
)

// ErrHubClosed is returned by Send after Run has returned.
var ErrHubClosed = errors.New("notification hub closed")

type broadcast struct {
	channel string
	msg     Message
	data    []byte
}

// Handler receives messages for an in-process subscription.
type Handler func(Message)

// Hub tracks websocket clients and in-process handlers by channel and
// delivers broadcasts to them. Client bookkeeping is owned by the Run loop.
type Hub struct {
	clients    map[string]map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan broadcast
	done       chan struct{}
	closeOnce  sync.Once

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	count    atomic.Int64
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewHub creates a Hub. Call Run to start delivery.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan broadcast, 64),
		done:       make(chan struct{}),
		handlers:   make(map[string]map[uint64]Handler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Run delivers broadcasts until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			for _, ch := range c.channels {
				set, ok := h.clients[ch]
				if !ok {
					set = make(map[*client]struct{})
					h.clients[ch] = set
				}
				set[c] = struct{}{}
			}
			h.count.Add(1)
			h.metrics.WebsocketClients.Inc()
			h.logger.Debug("websocket client registered", "remote", c.conn.RemoteAddr().String(), "channels", c.channels)

		case c := <-h.unregister:
			h.drop(c)

		case b := <-h.broadcast:
			for c := range h.clients[b.channel] {
				select {
				case c.send <- b.data:
				default:
					h.logger.Warn("websocket client send buffer full, removing",
						"remote", c.conn.RemoteAddr().String())
					h.drop(c)
				}
			}
			h.dispatchHandlers(b.channel, b.msg)
		}
	}
}

// Send queues msg for delivery on channel.
func (h *Hub) Send(ctx context.Context, channel string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	select {
	case h.broadcast <- broadcast{channel: channel, msg: msg, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers an in-process handler for channel and returns a
// function that removes it. Handlers run on the Hub's goroutine and must not
// block.
func (h *Hub) Subscribe(channel string, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	set, ok := h.handlers[channel]
	if !ok {
		set = make(map[uint64]Handler)
		h.handlers[channel] = set
	}
	set[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[channel], id)
		if len(h.handlers[channel]) == 0 {
			delete(h.handlers, channel)
		}
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request to a websocket subscribed to the city given by
// the "city" query parameter, or to the global channel when absent.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	channel := GlobalChannel
	if city := r.URL.Query().Get("city"); city != "" {
		channel = ChannelKey(city)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), channels: []string{channel}}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) dispatchHandlers(channel string, msg Message) {
	h.mu.RLock()
	fns := make([]Handler, 0, len(h.handlers[channel]))
	for _, fn := range h.handlers[channel] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (h *Hub) drop(c *client) {
	found := false
	for _, ch := range c.channels {
		set := h.clients[ch]
		if _, ok := set[c]; !ok {
			continue
		}
		found = true
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, ch)
		}
	}
	if !found {
		return
	}
	close(c.send)
	h.count.Add(-1)
	h.metrics.WebsocketClients.Dec()
	h.logger.Debug("websocket client unregistered", "remote", c.conn.RemoteAddr().String())
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
	for _, set := range h.clients {
		for c := range set {
			h.drop(c)
		}
	}
}
