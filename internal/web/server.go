// Package web serves the dashboard read/stream API: a full snapshot over
// HTTP and an active-job push channel over WebSocket.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orchard-dev/orchard/internal/store"
)

// Config configures the dashboard server.
type Config struct {
	// Addr is the listen address, e.g. ":4179".
	Addr string

	// Store is the state store to serve. Nil is allowed: the snapshot is
	// then empty and the push channel reports no active job.
	Store *store.Store

	// PushInterval overrides the active-job sampling interval (default
	// one second).
	PushInterval time.Duration
}

// Server is the dashboard HTTP/WS server.
type Server struct {
	cfg      Config
	hub      *hub
	pusher   *pusher
	srv      *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

var upgrader = websocket.Upgrader{
	// The dashboard is a local tool; any origin may subscribe.
	CheckOrigin: func(*http.Request) bool { return true },
}

// New builds a server from cfg.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, hub: newHub()}
	s.pusher = newPusher(cfg.Store, s.hub, cfg.PushInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/db", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins listening and launches the push loop. It returns once the
// listener is bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pusher.run(ctx)
	go func() {
		_ = s.srv.Serve(listener)
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop halts the push loop, disconnects subscribers, and shuts the HTTP
// server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
	return s.srv.Shutdown(ctx)
}

// handleSnapshot serves the full store snapshot as JSON.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dashboard := &store.Dashboard{Jobs: []*store.JobView{}}
	if s.cfg.Store != nil {
		data, err := s.cfg.Store.DashboardData(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		dashboard = data
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dashboard)
}

// handleWS upgrades the connection and streams active-job frames,
// starting with the current one.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	send := s.hub.add(conn)
	go writePump(conn, send)

	if frame, err := s.pusher.frame(r.Context()); err == nil {
		s.hub.sendTo(conn, frame)
	}

	// Reader loop: discard inbound messages, detect disconnect.
	go func() {
		defer func() {
			s.hub.remove(conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}
