// Package transport adapts byte-stream connections to the blocking
// receive/send interface the chat server is written against.
//
// A Receive call returns the bytes of one read, at most max long.  A clean
// close by the peer is reported as io.EOF; every other failure is returned
// as-is.  Send may be called from several goroutines at once.
package transport

import (
	"errors"
	"net"
)

// Conn is one accepted duplex connection.
type Conn interface {
	// Receive blocks until data arrives, the peer closes (io.EOF), or the
	// connection fails.  A nil error always comes with at least one byte.
	Receive(max int) ([]byte, error)
	// Send writes p as a single message.
	Send(p []byte) error
	// Close releases the connection.  Pending Receive calls return an error.
	Close() error
	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// Listener hands out accepted connections.  After Close, Accept returns an
// error matching net.ErrClosed.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// ErrBufferSize is returned by Receive for a non-positive max.
var ErrBufferSize = errors.New("transport: receive size must be positive")
