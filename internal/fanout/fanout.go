// Package fanout implements the live per-venue broadcast channel (C7):
// a websocket hub that pushes Frame, track-removal, LiDAR status, and
// ledger events to every subscribed client, snapshotting current state
// to a client on subscribe and disconnecting any client that falls
// behind rather than blocking the producer on it.
package fanout

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/venuetrack/engine/internal/aggregator"
	"github.com/venuetrack/engine/internal/metrics"
	"github.com/venuetrack/engine/internal/model"
	"github.com/venuetrack/engine/internal/source"
)

// Message types carried in the Type field of every envelope sent to
// clients.
const (
	MsgFrame        = "frame"
	MsgTrackRemoved = "track_removed"
	MsgLidarStatus  = "lidar_status"
	MsgLedgerEntry  = "ledger_entry"
)

// Envelope is the JSON wrapper every fan-out message is sent in.
type Envelope struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq"`
	VenueID string `json:"venueId"`
	Payload any    `json:"payload"`
}

// TrackRemovedPayload lists track keys that left the venue since the
// last frame (TTL-evicted or explicitly removed).
type TrackRemovedPayload struct {
	TrackKeys []model.TrackKey `json:"trackKeys"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger
}

func newClient(conn *websocket.Conn, log *slog.Logger) *client {
	c := &client{conn: conn, send: make(chan []byte, 64), log: log}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Hub fans frames and events out to every subscribed client of one
// venue. Safe for concurrent use: producers call the Broadcast*
// methods from the venue's tick goroutine, clients attach/detach from
// HTTP handler goroutines.
type Hub struct {
	venueID string
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	seq atomic.Uint64

	lastFrame atomic.Pointer[aggregator.Frame]
}

// NewHub returns an empty Hub for venueID.
func NewHub(venueID string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{venueID: venueID, log: log, clients: make(map[*client]bool)}
}

// Upgrade upgrades an HTTP request to a websocket connection, attaches
// it as a client, and sends it a snapshot of the last known frame. It
// blocks reading (and discarding) incoming messages until the
// connection closes, so it should be run in its own goroutine or as
// the terminal call of an HTTP handler.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(conn, h.log)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	if f := h.lastFrame.Load(); f != nil {
		h.sendTo(c, MsgFrame, *f)
	}

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			c.close()
		}
		h.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// BroadcastFrame sends a Frame update and retains it as the snapshot
// sent to newly subscribing clients.
func (h *Hub) BroadcastFrame(f aggregator.Frame) {
	h.lastFrame.Store(&f)
	h.broadcast(MsgFrame, f)
	if len(f.Removed) > 0 {
		h.broadcast(MsgTrackRemoved, TrackRemovedPayload{TrackKeys: f.Removed})
	}
}

// BroadcastLidarStatus sends a source status transition.
func (h *Hub) BroadcastLidarStatus(ev source.StatusEvent) {
	h.broadcast(MsgLidarStatus, ev)
}

// BroadcastLedgerEntry sends a newly created ledger entry.
func (h *Hub) BroadcastLedgerEntry(entry model.LedgerEntry) {
	h.broadcast(MsgLedgerEntry, entry)
}

// ClientCount reports the current subscriber count, mainly for
// metrics/diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msgType string, payload any) {
	data, err := h.encode(msgType, payload)
	if err != nil {
		h.log.Error("fanout: marshal failed", "venue", h.venueID, "type", msgType, "err", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("fanout: slow client, disconnecting", "venue", h.venueID)
			metrics.FanoutDisconnects.WithLabelValues(h.venueID).Inc()
			h.remove(c)
		}
	}
}

func (h *Hub) sendTo(c *client, msgType string, payload any) {
	data, err := h.encode(msgType, payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType, Seq: h.seq.Add(1), VenueID: h.venueID, Payload: payload}
	return json.Marshal(env)
}

// Registry owns one Hub per venue.
type Registry struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
	log  *slog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{hubs: make(map[string]*Hub), log: log}
}

// HubFor returns the Hub for venueID, creating it if necessary.
func (r *Registry) HubFor(venueID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[venueID]
	if !ok {
		h = NewHub(venueID, r.log)
		r.hubs[venueID] = h
	}
	return h
}

// Remove drops the Hub for venueID, e.g. when a venue is deleted.
func (r *Registry) Remove(venueID string) {
	r.mu.Lock()
	delete(r.hubs, venueID)
	r.mu.Unlock()
}
