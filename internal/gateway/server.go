package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MarketScreener/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server exposes metrics, health and the scan API over one listener.
type Server struct {
	addr string
	hub  *Hub
	srv  *http.Server
}

// NewServer wires the HTTP routes: /metrics, /healthz, the latest-report
// endpoint and the scan event WebSocket.
func NewServer(addr string, hub *Hub, health *metrics.Health) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	mux.HandleFunc("/api/v1/scan/latest", hub.handleLatest)
	mux.HandleFunc("/api/v1/scan/ws", hub.handleWS)

	return &Server{
		addr: addr,
		hub:  hub,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[INFO] Gateway listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[ERROR] Gateway server: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func (h *Hub) handleLatest(w http.ResponseWriter, _ *http.Request) {
	payload := h.Latest()
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no completed scan yet"})
		return
	}
	json.NewEncoder(w).Encode(payload)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] Gateway upgrade failed: %v", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	n := h.add(c)
	log.Printf("[INFO] Gateway client connected (%d total)", n)

	// Snapshot so a fresh client sees the last run without waiting for the
	// next scheduled one.
	if latest := h.Latest(); latest != nil {
		if msg, err := json.Marshal(Event{Type: EventScanReport, Time: time.Now(), Data: latest}); err == nil {
			c.send <- msg
		}
	}

	go c.writePump()
	go c.readPump()
}
