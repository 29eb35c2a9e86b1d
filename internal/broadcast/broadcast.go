// Package broadcast fan-outs launcher-facing events (status changes, new
// builds) to connected WebSocket clients. Delivery is best effort: a slow
// client drops events rather than blocking the publisher.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// Event is one notification pushed to launchers.
type Event struct {
	Type      string    `json:"type"`
	ProductID string    `json:"product_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Version   string    `json:"version,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fan-outs events to all active subscribers.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan Event
	next     int
	upgrader websocket.Upgrader
	now      func() time.Time
}

// Option configures Hub.
type Option func(*Hub)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(h *Hub) {
		if fn != nil {
			h.now = fn
		}
	}
}

// New initialises an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs: make(map[int]chan Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Launchers connect from arbitrary local origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()
	obs.BroadcastClients.Inc()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
		obs.BroadcastClients.Dec()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// NotifyStatusChange announces an operator status transition. Fire and
// forget: callers never learn about delivery failures.
func (h *Hub) NotifyStatusChange(productID, status, message string) {
	h.Publish(Event{
		Type:      "status_change",
		ProductID: productID,
		Status:    status,
		Message:   message,
	})
}

// NotifyVersionUpdate announces a newly uploaded build.
func (h *Hub) NotifyVersionUpdate(productID, version string) {
	h.Publish(Event{
		Type:      "version_update",
		ProductID: productID,
		Version:   version,
	})
}

// ClientCount reports the number of active subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams events until the client goes away.
// Inbound frames are read only to service pongs and detect disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.LogEvent("warn", "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	events := h.Subscribe(ctx)

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer conn.Close()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}
