// Package realtime pushes tournament events to websocket subscribers.
//
// Every connection subscribes to one topic, either "tournament:<id>" for bracket
// updates or "user:<id>" for personal notifications. The Hub implements both
// notify.Broadcaster and notify.Notifier.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var errHubStopped = errors.New("hub stopped")

type message struct {
	topic string
	data  []byte
}

type Hub struct {
	rooms map[string]map[*client]bool
	mu    sync.RWMutex

	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}

	upgrader websocket.Upgrader
}

// NewHub creates a hub accepting connections from the given origins. No origins or "*"
// accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*client]bool),
		broadcast:  make(chan message, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Run owns the room map until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.topic] == nil {
				h.rooms[c.topic] = make(map[*client]bool)
			}
			h.rooms[c.topic][c] = true
			n := len(h.rooms[c.topic])
			h.mu.Unlock()
			slog.Debug("websocket subscribed", "topic", c.topic, "subscribers", n)

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[msg.topic] {
				select {
				case c.send <- msg.data:
				default:
					// Too slow to keep up
					slog.Warn("dropping websocket subscriber", "topic", msg.topic)
					h.remove(c)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, room := range h.rooms {
				for c := range room {
					h.remove(c)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *client) {
	room, ok := h.rooms[c.topic]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.topic)
	}
}

// Subscribers returns how many connections currently listen on the topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

func (h *Hub) Publish(ctx context.Context, topic string, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.broadcast <- message{topic: topic, data: data}:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify pushes the message to the user's own topic.
func (h *Hub) Notify(ctx context.Context, userID uuid.UUID, kind notify.Kind, text string) error {
	topic := notify.UserTopic(userID)
	return h.Publish(ctx, topic, notify.Event{
		Type:  notify.EventNotification,
		Topic: topic,
		Payload: map[string]any{
			"kind": kind,
			"text": text,
		},
		SentAt: time.Now().UTC(),
	})
}

// ValidTopic reports whether topic names a tournament or user channel.
func ValidTopic(topic string) bool {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || (kind != "tournament" && kind != "user") {
		return false
	}
	return uuid.Validate(id) == nil
}

// ServeWS upgrades the request and subscribes the connection to the {topic} URL parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if !ValidTopic(topic) {
		http.Error(w, "Invalid topic", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		slog.Warn("websocket upgrade failed", "topic", topic, "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), topic: topic}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

// readPump discards incoming messages and unsubscribes once the peer goes away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket closed unexpectedly", "topic", c.topic, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One event per frame so clients can decode each message on its own
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
