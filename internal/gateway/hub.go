package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event types pushed over the scan WebSocket.
const (
	EventScanStarted  = "scan_started"
	EventScanProgress = "scan_progress"
	EventScanReport   = "scan_report"
	EventScanFailed   = "scan_failed"
)

// Event is the envelope every WebSocket message uses.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

// Hub fans scan events out to connected WebSocket clients and keeps the
// latest completed report for snapshots and the REST endpoint.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  *ReportPayload
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

func (h *Hub) add(c *Client) int {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	return n
}

// RemoveClient drops a client and closes its send channel. Safe to call for
// a client that was already removed.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one event to every connected client. A client whose queue
// is full misses the event rather than stalling the scan.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	msg, err := json.Marshal(Event{Type: eventType, Time: time.Now(), Data: data})
	if err != nil {
		log.Printf("[ERROR] Gateway event marshal: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// PublishReport stores a completed run as the latest snapshot and broadcasts
// it to all clients.
func (h *Hub) PublishReport(payload *ReportPayload) {
	h.mu.Lock()
	h.latest = payload
	h.mu.Unlock()
	h.Broadcast(EventScanReport, payload)
}

// Latest returns the most recent completed report payload, nil before the
// first completed run.
func (h *Hub) Latest() *ReportPayload {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}
