package http

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	// The remote is served on the local network to the player's own UI.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is one message on the state stream.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans frames out to every connected websocket client.
type Hub struct {
	clients    map[*streamClient]bool
	broadcast  chan []byte
	register   chan *streamClient
	unregister chan *streamClient
	done       chan struct{}
	count      atomic.Int64

	metrics *Metrics
	logger  *zap.Logger
}

type streamClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(metrics *Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.dropUnsafe(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.logger.Debug("Stream client connected", zap.String("client", client.id))

		case client := <-h.unregister:
			if h.clients[client] {
				h.dropUnsafe(client)
				h.logger.Debug("Stream client disconnected", zap.String("client", client.id))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("Dropping slow stream client", zap.String("client", client.id))
					h.dropUnsafe(client)
				}
			}
		}
	}
}

// dropUnsafe must only be called from Run.
func (h *Hub) dropUnsafe(client *streamClient) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	h.metrics.SetStreamClients(len(h.clients))
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues frame for every client. It returns false once the hub stopped.
func (h *Hub) Broadcast(frame Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to encode stream frame", zap.String("type", frame.Type), zap.Error(err))
		return true
	}
	select {
	case h.broadcast <- data:
		return true
	case <-h.done:
		return false
	}
}

func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleStream upgrades the request and primes the client with the current
// state and queue before it joins the hub.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade stream connection", zap.Error(err))
		return
	}

	client := &streamClient{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	for _, frame := range []Frame{
		{Type: "state", Data: s.session.Synchronizer().State()},
		{Type: "queue", Data: s.session.Engine().Queue()},
	} {
		if data, err := json.Marshal(frame); err == nil {
			client.send <- data
		}
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// streamSession forwards state changes, queue changes and notifications to
// the hub until ctx is done.
func (s *Server) streamSession(ctx context.Context) {
	states, cancelStates := s.session.Synchronizer().Subscribe()
	defer cancelStates()
	notifications, cancelNotifications := s.session.Notifier().Subscribe()
	defer cancelNotifications()

	var lastQueue []string
	queueKeys := func(entries []core.QueueEntry) []string {
		keys := make([]string, len(entries))
		for i, entry := range entries {
			keys[i] = entry.Key()
		}
		return keys
	}

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-states:
			if !ok {
				return
			}
			if !s.hub.Broadcast(Frame{Type: "state", Data: state}) {
				return
			}
			queue := s.session.Engine().Queue()
			if keys := queueKeys(queue); !slices.Equal(keys, lastQueue) {
				lastQueue = keys
				s.hub.Broadcast(Frame{Type: "queue", Data: queue})
			}

		case notification, ok := <-notifications:
			if !ok {
				return
			}
			if !s.hub.Broadcast(Frame{Type: "notification", Data: notification}) {
				return
			}
		}
	}
}
