package server

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"namedchat/internal/transport"
)

const waitTimeout = time.Second

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeConn is a transport.Conn fed from a channel.  Closing inbox makes
// Receive report io.EOF (or recvErr when set).
type fakeConn struct {
	addr    string
	inbox   chan string
	done    chan struct{}
	once    sync.Once
	recvErr error

	mu      sync.Mutex
	sent    []string
	sendErr error
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:  addr,
		inbox: make(chan string, 16),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) Receive(max int) ([]byte, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			if c.recvErr != nil {
				return nil, c.recvErr
			}
			return nil, io.EOF
		}
		if len(msg) > max {
			msg = msg[:max]
		}
		return []byte(msg), nil
	case <-c.done:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed() {
		return net.ErrClosed
	}
	c.sent = append(c.sent, string(p))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

var errBrokenPipe = errors.New("broken pipe")

// pipeListener hands out the server ends of net.Pipe pairs created by Dial.
type pipeListener struct {
	conns chan transport.Conn
	errs  chan error
	done  chan struct{}
	once  sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{
		conns: make(chan transport.Conn),
		errs:  make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// Dial returns the client end of a new connection once Accept has taken the
// server end.
func (l *pipeListener) Dial(t *testing.T) net.Conn {
	t.Helper()
	client, srv := net.Pipe()
	select {
	case l.conns <- transport.NewConn(srv):
	case <-time.After(waitTimeout):
		t.Fatal("Dial: nobody accepted")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func (l *pipeListener) Accept() (transport.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case err := <-l.errs:
		return nil, err
	case c := <-l.conns:
		return c, nil
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr{} }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// collect reads conn until it fails, sending each read as one message.
func collect(conn net.Conn) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				out <- string(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func expectMessage(t *testing.T, ch <-chan string, want, label string) {
	t.Helper()
	select {
	case got, ok := <-ch:
		if !ok {
			t.Fatalf("%s: connection closed, expected %q", label, want)
		}
		if got != want {
			t.Fatalf("%s: received %q, expected %q", label, got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("%s: nothing received, expected %q", label, want)
	}
}

func expectClosed(t *testing.T, ch <-chan string, label string) {
	t.Helper()
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("%s: received %q, expected the connection to close", label, got)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("%s: connection still open", label)
	}
}

func expectSilence(t *testing.T, ch <-chan string, label string) {
	t.Helper()
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("%s: unexpected message %q", label, got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func registered(reg *Registry, name string) func() bool {
	return func() bool {
		_, ok := reg.Lookup(name)
		return ok
	}
}
