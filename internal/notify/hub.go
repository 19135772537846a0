package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/coder/websocket"
)

type hubClient struct {
	conn      *websocket.Conn
	sessionID string
}

// Hub fans notifications out to websocket subscribers. A subscriber that
// passed ?session_id= only receives notifications for that session; the
// others receive everything.
type Hub struct {
	mu            sync.RWMutex
	clients       map[*hubClient]struct{}
	closed        bool
	allowedOrigin string
	logger        *slog.Logger
}

// NewHub creates a Hub. allowedOrigin is the only browser origin accepted;
// empty or "*" accepts any origin.
func NewHub(allowedOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:       make(map[*hubClient]struct{}),
		allowedOrigin: allowedOrigin,
		logger:        logger,
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return SinkWS }

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send implements Sink. Write failures drop the subscriber.
func (h *Hub) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		if c.sessionID == "" || c.sessionID == n.SessionID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range targets {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			errs = append(errs, err)
			h.unregister(c)
			_ = c.conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
	return errors.Join(errs...)
}

// ServeHTTP upgrades the request and keeps the subscriber registered until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}

	c := &hubClient{conn: conn, sessionID: sessionID}
	if !h.register(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer func() {
		h.unregister(c)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	h.readLoop(r.Context(), c)
}

// readLoop answers pings until the subscriber goes away.
func (h *Hub) readLoop(ctx context.Context, c *hubClient) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("Notification subscriber closed", "session_id", c.sessionID)
			} else {
				h.logger.Debug("Notification subscriber read error", "session_id", c.sessionID, "error", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == "ping" {
			if err := c.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("Notification subscriber registered", "session_id", c.sessionID, "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Info("Notification subscriber unregistered", "session_id", c.sessionID, "clients", len(h.clients))
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
