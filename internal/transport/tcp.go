package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
)

type netConn struct {
	conn net.Conn
}

// NewConn wraps a stream connection such as *net.TCPConn or one end of
// net.Pipe.
func NewConn(c net.Conn) Conn {
	return &netConn{conn: c}
}

func (c *netConn) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, ErrBufferSize
	}
	buf := make([]byte, max)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			// A trailing error, if any, is reported by the next call.
			return buf[:n], nil
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// Send relies on net.Conn serializing concurrent Write calls.
func (c *netConn) Send(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

func (c *netConn) Close() error { return c.conn.Close() }

func (c *netConn) RemoteAddr() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

type netListener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr.
func Listen(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return NewListener(ln), nil
}

// NewListener wraps an existing net.Listener.
func NewListener(ln net.Listener) Listener {
	return &netListener{ln: ln}
}

func (l *netListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func (l *netListener) Close() error   { return l.ln.Close() }
func (l *netListener) Addr() net.Addr { return l.ln.Addr() }
