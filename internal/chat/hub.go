package chat

import (
	"log/slog"
	"sync"
	"time"

	"luggo/internal/metrics"
)

const writeWait = 10 * time.Second

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type entry struct {
	conn Conn
	mu   sync.Mutex
}

// Hub is the registry of live connections per user. A user may hold several
// connections at once (tabs, devices).
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]*entry
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{conns: map[string]map[Conn]*entry{}, logger: logger}
}

// Add registers conn for userID.
func (h *Hub) Add(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = map[Conn]*entry{}
		h.conns[userID] = set
	}
	if _, dup := set[conn]; dup {
		return
	}
	set[conn] = &entry{conn: conn}
	metrics.LiveConnections.Inc()
}

// Remove unregisters conn. It reports whether conn was registered.
func (h *Hub) Remove(userID string, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
	metrics.LiveConnections.Dec()
	return true
}

// Lookup returns the user's live connections.
func (h *Hub) Lookup(userID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		out = append(out, c)
	}
	return out
}

// Online reports whether the user has at least one connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// Send writes v as JSON to every connection of userID and returns how many
// writes succeeded. Connections that fail are closed and dropped.
func (h *Hub) Send(userID string, v any) int {
	h.mu.RLock()
	targets := make([]*entry, 0, len(h.conns[userID]))
	for _, e := range h.conns[userID] {
		targets = append(targets, e)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, e := range targets {
		e.mu.Lock()
		_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := e.conn.WriteJSON(v)
		e.mu.Unlock()
		if err != nil {
			h.logger.Warn("live push failed, dropping connection", "user_id", userID, "error", err)
			if h.Remove(userID, e.conn) {
				_ = e.conn.Close()
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Close drops and closes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.conns
	h.conns = map[string]map[Conn]*entry{}
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			_ = c.Close()
			metrics.LiveConnections.Dec()
		}
	}
}
