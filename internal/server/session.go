package server

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"namedchat/internal/protocol"
	"namedchat/internal/transport"
)

// SessionState is a step in a client session's lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// session drives one accepted connection:
//
//	Connecting → Handshaking → Active → Closing → Closed
//	                  └───────────────────────────↗  (no name, taken name, read error)
//
// It owns conn exclusively and is the only code that closes it.  Nothing
// tracks a session after it is launched; it ends when it reaches Closed.
type session struct {
	id     string
	server *Server
	conn   transport.Conn
	name   string // set once the handshake registers it
	state  atomic.Int32
}

func newSession(conn transport.Conn, srv *Server) *session {
	return &session{
		id:     uuid.NewString(),
		server: srv,
		conn:   conn,
	}
}

func (s *session) State() SessionState { return SessionState(s.state.Load()) }

func (s *session) setState(st SessionState) { s.state.Store(int32(st)) }

func (s *session) logf(format string, v ...any) {
	s.server.logger.Printf("[session "+s.id[:8]+"] "+format, v...)
}

// run executes the whole lifecycle on the calling goroutine.
func (s *session) run() {
	s.setState(StateHandshaking)
	if !s.handshake() {
		s.conn.Close()
		s.setState(StateClosed)
		return
	}

	s.setState(StateActive)
	s.receiveLoop()

	s.setState(StateClosing)
	s.teardown()
	s.setState(StateClosed)
}

// handshake reads exactly one message and registers it as the client name.
func (s *session) handshake() bool {
	data, err := s.conn.Receive(s.server.cfg.BufferSize)
	switch {
	case errors.Is(err, io.EOF):
		s.logf("%s closed before naming itself", s.conn.RemoteAddr())
		return false
	case err != nil:
		s.logf("%s handshake failed: %v", s.conn.RemoteAddr(), err)
		return false
	}

	name := protocol.TrimLine(string(data))
	if name == "" {
		s.logf("%s sent an empty name, closing", s.conn.RemoteAddr())
		return false
	}
	if !s.server.registry.Register(name, s.conn) {
		s.logf("%s asked for name %q which is taken, closing", s.conn.RemoteAddr(), name)
		return false
	}

	s.name = name
	s.logf("+client %s (%s)  total=%d", name, s.conn.RemoteAddr(), s.server.registry.Len())
	if s.server.cfg.Announce {
		s.server.router.Announce(name + " joined the chat")
	}
	return true
}

// receiveLoop treats each Receive as one line until the peer leaves.
func (s *session) receiveLoop() {
	for {
		data, err := s.conn.Receive(s.server.cfg.BufferSize)
		switch {
		case errors.Is(err, io.EOF):
			s.logf("%s closed the connection", s.name)
			return
		case err != nil:
			s.logf("%s receive error: %v", s.name, err)
			return
		}

		d, payload := protocol.Parse(protocol.TrimLine(string(data)))
		if d == protocol.Exit {
			s.logf("%s sent %s", s.name, protocol.Exit)
			return
		}
		s.server.router.Route(s.name, d, payload)
	}
}

func (s *session) teardown() {
	s.server.registry.Unregister(s.name)
	if err := s.conn.Close(); err != nil {
		s.logf("close %s: %v", s.name, err)
	}
	s.logf("-client %s  total=%d", s.name, s.server.registry.Len())
	if s.server.cfg.Announce {
		s.server.router.Announce(s.name + " left the chat")
	}
}
