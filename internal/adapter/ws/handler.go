// Package ws implements the live update hub over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all frames pushed to observers.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WelcomeFunc produces the initial snapshot payload pushed to a newly
// connected observer, so the dashboard renders before the first tick.
type WelcomeFunc func(ctx context.Context) any

// conn wraps a single observer connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub manages all active observer connections and fans frames out to them.
// A slow observer is dropped, never blocked on.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*conn]struct{}
	welcome WelcomeFunc
}

// NewHub creates a hub. welcome may be nil.
func NewHub(welcome WelcomeFunc) *Hub {
	return &Hub{
		conns:   make(map[*conn]struct{}),
		welcome: welcome,
	}
}

// SetWelcome installs the welcome snapshot producer. Used when the hub
// must exist before the snapshot source does.
func (h *Hub) SetWelcome(welcome WelcomeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.welcome = welcome
}

// HandleWS upgrades the request to a WebSocket observer connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	welcome := h.welcome
	h.mu.Unlock()

	slog.Info("observer connected", "remote", r.RemoteAddr)

	if welcome != nil {
		h.send(ctx, c, EventSnapshot, welcome(ctx))
	}

	// Read loop detects disconnects and consumes pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// BroadcastEvent marshals a typed event and sends it to every observer.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(Message{Type: eventType, Payload: data})
	if err != nil {
		slog.Error("marshal ws envelope", "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
			slog.Debug("observer write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ObserverCount returns the number of active observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) send(ctx context.Context, c *conn, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal welcome payload", "error", err)
		return
	}
	msg, _ := json.Marshal(Message{Type: eventType, Payload: data})
	if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
		slog.Debug("welcome write failed", "error", err)
		go h.remove(c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("observer disconnected")
	}
}
