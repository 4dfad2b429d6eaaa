package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shobhitrajxyz/anonymate-app/internal/geo"
	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.PrometheusHandler(s.metrics, s.gauges)).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.ServeWs).Methods(http.MethodGet)
}

// healthHandler reports liveness with the server clock in unix milliseconds.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UnixMilli(),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) gauges() map[string]int64 {
	stats := s.hub.Stats()
	return map[string]int64{
		"users":  int64(stats.Users),
		"queued": int64(stats.Queued),
		"rooms":  int64(stats.Rooms),
	}
}

// ServeWs upgrades the request and hands the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("failed to upgrade connection", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	client := signaling.NewClient(s.hub, conn, geo.ClientIP(r))
	if !s.hub.Connect(client) {
		conn.Close()
		return
	}

	// Start the client's read and write pumps in separate goroutines
	// These methods will handle the client's lifecycle
	go client.WritePump()
	go client.ReadPump()
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
