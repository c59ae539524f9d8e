package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"namedchat/internal/server"
	"namedchat/internal/transport"
)

func main() {
	addr     := flag.String("addr", ":8080", "TCP address to listen on")
	wsAddr   := flag.String("ws", "", "address for WebSocket clients (empty disables)")
	wsPath   := flag.String("ws-path", "/ws", "HTTP path that upgrades to WebSocket")
	bufSize  := flag.Int("buffer", server.DefaultBufferSize, "maximum bytes read as one message")
	newline  := flag.Bool("newline", true, "terminate every delivered line with \\n")
	announce := flag.Bool("announce", false, "broadcast a notice when clients join or leave")
	flag.Parse()

	if *bufSize <= 0 {
		log.Fatalf("-buffer must be positive, got %d", *bufSize)
	}

	cfg := server.Config{
		BufferSize: *bufSize,
		Announce:   *announce,
	}
	if *newline {
		cfg.Terminator = "\n"
	}
	srv := server.New(cfg, log.Default())

	// Listener failures are the only fatal errors.
	ln, err := transport.Listen(*addr)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}
	if *wsAddr != "" {
		wsl, err := transport.ListenWebSocket(*wsAddr, *wsPath)
		if err != nil {
			log.Fatalf("init websocket: %v", err)
		}
		go func() {
			if err := srv.Serve(wsl); err != nil {
				log.Printf("[server] websocket stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("[server] shutting down…")
		srv.Shutdown()
	}()

	if err := srv.Serve(ln); err != nil {
		log.Printf("[server] stopped: %v", err)
	}
}
