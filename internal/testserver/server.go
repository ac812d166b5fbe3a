// Package testserver is a fake dashboard backend for tests: REST fixtures
// served from memory plus a websocket endpoint backed by a Hub.
package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SocketPath is the path the fake server upgrades.
const SocketPath = "/ws"

type fixture struct {
	status int
	body   []byte
	delay  time.Duration
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server
	Hub *Hub

	upgrader websocket.Upgrader

	mu       sync.Mutex
	fixtures map[string]fixture
	requests map[string]int
	headers  map[string]http.Header
	reject   bool
	dials    int
}

// New starts a server and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		Hub:      NewHub(&logger),
		fixtures: make(map[string]fixture),
		requests: make(map[string]int),
		headers:  make(map[string]http.Header),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	go s.Hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.serveSocket)
	mux.HandleFunc("/", s.serveREST)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		s.Server.CloseClientConnections()
		s.Server.Close()
	})
	return s
}

// SocketURL is the ws:// address of the socket endpoint.
func (s *Server) SocketURL() string {
	return "ws" + s.URL[len("http"):] + SocketPath
}

// SetJSON serves v with status at path.
func (s *Server) SetJSON(path string, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.SetRaw(path, status, body)
}

// SetRaw serves body with status at path.
func (s *Server) SetRaw(path string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fixtures[path]
	f.status, f.body = status, body
	s.fixtures[path] = f
}

// SetDelay makes responses for path wait d before being written.
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fixtures[path]
	f.delay = d
	s.fixtures[path] = f
}

// Requests returns how many times path has been requested.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// LastHeader returns the headers of the latest request for path.
func (s *Server) LastHeader(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path]
}

// RejectSockets makes the socket endpoint answer 503 instead of upgrading.
func (s *Server) RejectSockets(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// Dials returns how many socket handshakes were attempted.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *Server) serveREST(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	s.headers[r.URL.Path] = r.Header.Clone()
	f, ok := s.fixtures[r.URL.Path]
	s.mu.Unlock()

	if !ok || f.status == 0 {
		http.NotFound(w, r)
		return
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write(f.body)
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	reject := s.reject
	s.mu.Unlock()

	if reject {
		http.Error(w, "socket unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(s.Hub, conn)
	select {
	case s.Hub.register <- client:
	case <-s.Hub.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
