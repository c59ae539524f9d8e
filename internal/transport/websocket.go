package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	closeGrace        = time.Second
	readHeaderTimeout = 10 * time.Second
)

// WebSocketListener upgrades HTTP requests to WebSocket connections and hands
// them out through Accept.  It is an http.Handler, so it can be mounted on any
// mux; ListenWebSocket runs it on its own HTTP server.
type WebSocketListener struct {
	upgrader websocket.Upgrader
	conns    chan Conn
	done     chan struct{}
	once     sync.Once
	addr     net.Addr
	srv      *http.Server
}

// NewWebSocketListener returns a listener that is not bound to any address.
func NewWebSocketListener() *WebSocketListener {
	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			// Any origin may connect; there is no authentication layer to protect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
}

// ListenWebSocket serves WebSocket upgrades for path on addr.
func ListenWebSocket(addr, path string) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	l := NewWebSocketListener()
	l.addr = ln.Addr()

	mux := http.NewServeMux()
	mux.Handle(path, l)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go l.srv.Serve(ln)
	return l, nil
}

// ServeHTTP upgrades the request and blocks until Accept takes the connection
// or the listener is closed.
func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	c := &wsConn{ws: ws, remote: r.RemoteAddr}
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *WebSocketListener) Accept() (Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	default:
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.srv != nil {
			err = l.srv.Close()
		}
	})
	return err
}

func (l *WebSocketListener) Addr() net.Addr {
	if l.addr != nil {
		return l.addr
	}
	return wsAddr{}
}

type wsAddr struct{}

func (wsAddr) Network() string { return "websocket" }
func (wsAddr) String() string  { return "websocket" }

// wsConn maps one WebSocket message to one Receive.  gorilla/websocket allows a
// single concurrent writer, so Send is serialized with wmu.
type wsConn struct {
	ws     *websocket.Conn
	remote string
	wmu    sync.Mutex
}

func (c *wsConn) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, ErrBufferSize
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		if len(data) > max {
			data = data[:max]
		}
		return data, nil
	}
}

func (c *wsConn) Send(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, p)
}

// Close sends a normal-closure frame on a best-effort basis before dropping
// the connection.  WriteControl may run alongside Send.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string { return c.remote }
