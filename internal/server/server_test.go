package server

import (
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"namedchat/internal/transport"
)

// startServer serves a pipeListener in the background.
func startServer(t *testing.T, cfg Config) (*Server, *pipeListener) {
	t.Helper()
	srv := New(cfg, quietLogger())
	ln := newPipeListener()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-served:
		case <-time.After(waitTimeout):
			t.Error("Serve did not return after Shutdown")
		}
	})
	return srv, ln
}

// join dials, sends name and waits until the server has registered it.
func join(t *testing.T, srv *Server, ln *pipeListener, name string) (net.Conn, <-chan string) {
	t.Helper()
	conn := ln.Dial(t)
	if _, err := conn.Write([]byte(name + "\n")); err != nil {
		t.Fatalf("%s: handshake write: %v", name, err)
	}
	waitFor(t, name+" registered", registered(srv.Registry(), name))
	return conn, collect(conn)
}

func TestServer_EndToEnd(t *testing.T) {
	srv, ln := startServer(t, Config{})

	bob, bobRecv := join(t, srv, ln, "bob")
	alice, aliceRecv := join(t, srv, ln, "alice")

	if _, err := alice.Write([]byte("!broadcast ping")); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	expectMessage(t, bobRecv, "alice: ping", "bob")
	expectMessage(t, aliceRecv, "alice: ping", "alice")

	alice.Close()
	waitFor(t, "alice unregistered", func() bool { return !registered(srv.Registry(), "alice")() })
	expectClosed(t, aliceRecv, "alice")

	if _, err := bob.Write([]byte("!broadcast anyone?")); err != nil {
		t.Fatalf("bob write: %v", err)
	}
	expectMessage(t, bobRecv, "bob: anyone?", "bob")
	if got := srv.Registry().Names(); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Fatalf("registry = %v, want [bob]", got)
	}
}

func TestServer_HandshakeRejection(t *testing.T) {
	srv, ln := startServer(t, Config{})

	empty := ln.Dial(t)
	emptyRecv := collect(empty)
	empty.Write([]byte("\n"))
	expectClosed(t, emptyRecv, "empty name")

	silent := ln.Dial(t)
	silent.Close()

	// A later client still gets through; the rejected ones left no entry.
	join(t, srv, ln, "carol")
	if got := srv.Registry().Names(); !reflect.DeepEqual(got, []string{"carol"}) {
		t.Fatalf("registry = %v, want [carol]", got)
	}
}

func TestServer_DuplicateName(t *testing.T) {
	srv, ln := startServer(t, Config{})
	_, bobRecv := join(t, srv, ln, "bob")

	dup := ln.Dial(t)
	dupRecv := collect(dup)
	dup.Write([]byte("bob"))
	expectClosed(t, dupRecv, "second bob")

	if !srv.Router().Unicast("bob", "still yours") {
		t.Fatal("original bob unreachable")
	}
	expectMessage(t, bobRecv, "still yours", "bob")
}

func TestServer_PrivateAndUserList(t *testing.T) {
	srv, ln := startServer(t, Config{Terminator: "\n"})
	alice, aliceRecv := join(t, srv, ln, "alice")
	_, bobRecv := join(t, srv, ln, "bob")
	_, carolRecv := join(t, srv, ln, "carol")

	alice.Write([]byte("!private bob lunch?\n"))
	expectMessage(t, bobRecv, "alice (private): lunch?\n", "bob")

	alice.Write([]byte("!userlist\n"))
	expectMessage(t, aliceRecv, "**SERVER**: 3 user(s) online: alice, bob, carol\n", "alice")

	alice.Write([]byte("!nonsense\n"))
	expectSilence(t, aliceRecv, "alice")
	expectSilence(t, bobRecv, "bob")
	expectSilence(t, carolRecv, "carol")
}

func TestServer_AcceptErrorDoesNotStopLoop(t *testing.T) {
	srv, ln := startServer(t, Config{})
	ln.errs <- errors.New("too many open files")

	join(t, srv, ln, "dave")
}

func TestServer_ShutdownStopsServe(t *testing.T) {
	srv := New(Config{}, quietLogger())
	ln := newPipeListener()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	waitFor(t, "listener tracked", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.listeners) == 1
	})
	srv.Shutdown()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned %v after Shutdown", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return")
	}

	if err := srv.Serve(newPipeListener()); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("Serve after Shutdown = %v, want ErrServerClosed", err)
	}
}

func TestServer_TCP(t *testing.T) {
	srv := New(Config{Terminator: "\n"}, quietLogger())
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ln)
	defer srv.Shutdown()

	dial := func(name string) (net.Conn, <-chan string) {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { c.Close() })
		c.Write([]byte(name + "\r\n"))
		waitFor(t, name+" registered", registered(srv.Registry(), name))
		return c, collect(c)
	}

	alice, aliceRecv := dial("alice")
	_, bobRecv := dial("bob")

	alice.Write([]byte("!broadcast over tcp\r\n"))
	expectMessage(t, aliceRecv, "alice: over tcp\n", "alice")
	expectMessage(t, bobRecv, "alice: over tcp\n", "bob")
}

func TestConfig_Defaults(t *testing.T) {
	if got := (Config{}).withDefaults().BufferSize; got != DefaultBufferSize {
		t.Fatalf("default BufferSize = %d", got)
	}
	if got := (Config{BufferSize: 64}).withDefaults().BufferSize; got != 64 {
		t.Fatalf("BufferSize overridden to %d", got)
	}
}

func TestBackoff(t *testing.T) {
	d := backoff(0)
	if d != minAcceptDelay {
		t.Fatalf("first delay %v", d)
	}
	for i := 0; i < 20; i++ {
		d = backoff(d)
	}
	if d != maxAcceptDelay {
		t.Fatalf("delay not capped: %v", d)
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	srv := New(Config{}, quietLogger())
	if err := srv.ListenAndServe("256.0.0.1:http-bogus"); err == nil {
		t.Fatal("ListenAndServe on a bad address returned nil")
	}

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe("127.0.0.1:0") }()
	waitFor(t, "listener tracked", func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.listeners) == 1
	})
	srv.Shutdown()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("ListenAndServe returned %v after Shutdown", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("ListenAndServe did not return")
	}
}
