// Package server exposes the signaling hub over HTTP.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

// Server owns the HTTP listener in front of a Hub.
type Server struct {
	log     *slog.Logger
	cfg     *config.ServerConfig
	hub     *signaling.Hub
	metrics *metrics.Metrics

	upgrader websocket.Upgrader
	router   *mux.Router
	srv      *http.Server
}

// New builds the router and HTTP server. The hub must already be running.
func New(cfg *config.ServerConfig, hub *signaling.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		log:     logger,
		cfg:     cfg,
		hub:     hub,
		metrics: m,
		router:  mux.NewRouter(),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin:     s.checkOrigin,
	}

	s.registerRoutes()
	s.router.Use(recoverMiddleware(s.log), requestLoggerMiddleware(s.log))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Serve(l net.Listener) error {
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// checkOrigin admits non-browser clients (no Origin header) and browsers
// from the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.AllowsAnyOrigin() {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	s.log.Debug("websocket origin rejected", "origin", origin)
	return false
}
