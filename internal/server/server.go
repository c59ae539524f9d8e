// Package server implements the name-addressed chat server.
//
// Concurrency overview
// --------------------
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Acceptor goroutine (one per Serve call)                │
//	│  Accepts connections; launches one session goroutine    │
//	│  per connection and never waits on it.                  │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  go session.run()
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Session goroutines                                     │
//	│  Handshake, then receive → parse → route until the peer │
//	│  leaves.  Routing writes directly to recipients' conns. │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  Register / Unregister / Lookup / Snapshot
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Registry  (sync.RWMutex)                               │
//	│  name → connection; the only shared mutable state.      │
//	└─────────────────────────────────────────────────────────┘
package server

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"namedchat/internal/transport"
)

// DefaultBufferSize is the receive ceiling used when Config leaves it unset.
const DefaultBufferSize = 512

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Config holds the settings supplied by the process that starts the server.
type Config struct {
	// BufferSize caps the bytes taken by one receive, and so one message.
	BufferSize int
	// Terminator is appended to every line delivered to a client.
	Terminator string
	// Announce broadcasts a notice when a client joins or leaves.
	Announce bool
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Server ties together the Registry, the Router and any number of listeners.
type Server struct {
	cfg      Config
	registry *Registry
	router   *Router
	logger   *log.Logger

	mu        sync.Mutex
	listeners map[transport.Listener]struct{}
	closed    bool
}

// New creates a Server.  A nil logger means log.Default().
func New(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	reg := NewRegistry()
	return &Server{
		cfg:       cfg,
		registry:  reg,
		router:    NewRouter(reg, logger, cfg.Terminator),
		logger:    logger,
		listeners: make(map[transport.Listener]struct{}),
	}
}

// Registry exposes the table of connected clients.
func (s *Server) Registry() *Registry { return s.registry }

// Router exposes the router used by every session.
func (s *Server) Router() *Router { return s.router }

// ListenAndServe opens a TCP listener on addr and serves it.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := transport.Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until ln is closed, launching a session
// for each.  A failed Accept is logged and retried; it never stops the loop.
// Serve returns nil once ln is closed, or ErrServerClosed if the server was
// already shut down.
func (s *Server) Serve(ln transport.Listener) error {
	if !s.track(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrack(ln)
	s.logger.Printf("[server] listening on %s", ln.Addr())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Printf("[server] listener %s closed", ln.Addr())
				return nil
			}
			delay = backoff(delay)
			s.logger.Printf("[server] accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		go newSession(conn, s).run()
	}
}

// Shutdown closes every listener so Serve returns.  Sessions already running
// are left alone and end when their peers disconnect or the process exits.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ln := range s.listeners {
		ln.Close()
	}
}

func (s *Server) track(ln transport.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrack(ln transport.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	if d *= 2; d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}
