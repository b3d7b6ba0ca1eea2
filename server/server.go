// Package server exposes one script actor over HTTP and WebSocket.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/utils"
	"golang.org/x/net/websocket"
)

// Server forwards requests to a script actor and writes back its replies.
type Server struct {
	engine  *bollywood.Engine
	target  *bollywood.PID
	timeout time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// New creates a Server asking target with cfg.RequestTimeout per request.
func New(engine *bollywood.Engine, target *bollywood.PID, cfg utils.Config) *Server {
	return &Server{
		engine:  engine,
		target:  target,
		timeout: cfg.RequestTimeout,
		conns:   make(map[*websocket.Conn]bool),
	}
}

// Handler returns the routes: /subscribe for WebSocket clients, everything else
// is a plain request handed to the actor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/subscribe", websocket.Handler(s.HandleSubscribe()))
	mux.HandleFunc("/", s.HandleRequest())
	return mux
}

func (s *Server) openConnection(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[ws] = true
}

func (s *Server) closeConnection(ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = ws.Close()
	delete(s.conns, ws)
}

// ConnectionCount reports the number of open WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll closes every open WebSocket connection.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.conns {
		_ = ws.Close()
		delete(s.conns, ws)
	}
}
