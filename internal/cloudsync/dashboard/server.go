// Package dashboard streams sync activity to WebSocket clients.
//
// The daemon reports polls, pushes, shares and errors through a Handler,
// which turns them into Messages that the Server fans out to every
// connected client.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/logging"
)

const (
	queueSize      = 100
	clientBuffer   = 16
	writeTimeout   = 5 * time.Second
	shutdownWindow = 5 * time.Second
)

// Config holds server settings.
type Config struct {
	// Host to bind; empty binds all interfaces.
	Host string
	// Port to listen on; 0 picks a free port.
	Port int
	// Logger; nil logs to stderr.
	Logger *zerolog.Logger
}

// DefaultConfig binds 127.0.0.1:8080.
func DefaultConfig() *Config {
	return &Config{Host: "127.0.0.1", Port: 8080}
}

// client is one WebSocket connection with its own outgoing buffer, so a slow
// reader never holds up the others.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server accepts WebSocket clients and fans dashboard messages out to them.
type Server struct {
	addr   string
	ln     net.Listener
	http   *http.Server
	logger *zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	queue chan Message

	// welcome builds the first message sent to each new client.
	welcome func() Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server; nil config means DefaultConfig.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		logger:  logging.OrDefault(config.Logger, "dashboard"),
		clients: make(map[*client]struct{}),
		queue:   make(chan Message, queueSize),
		welcome: func() Message { return Message{Type: MessageTypeStats} },
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens and serves in the background. The routes are /ws for the
// feed, /health for a JSON status, and / for a short landing page.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWebSocket)
	mux.HandleFunc("/health", s.serveHealth)
	mux.HandleFunc("/", s.serveIndex)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Dashboard listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Dashboard server failed")
		}
	}()
	return nil
}

// Stop disconnects every client, shuts the HTTP server down and waits for
// all server goroutines. It is safe to call without Start.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("dashboard shutdown: %w", shutdownErr)
		}
	}

	s.wg.Wait()
	s.logger.Info().Msg("Dashboard stopped")
	return err
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.logger.Warn().Str("type", string(msg.Type)).Msg("Dashboard queue full, dropping message")
	}
}

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) fanOut() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			data, err := encode(msg)
			if err != nil {
				s.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode message")
				continue
			}

			s.mu.RLock()
			var slow []*client
			for c := range s.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			s.mu.RUnlock()

			for _, c := range slow {
				s.logger.Debug().Msg("Client too slow, disconnecting")
				s.drop(c, websocket.StatusPolicyViolation, "too slow")
			}
		}
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if data, err := encode(s.welcome()); err == nil {
		c.send <- data
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()
	s.logger.Info().Int("clients", n).Msg("Client connected")

	go s.writeLoop(c)
	go s.readLoop(c)
}

// writeLoop drains the client's buffer onto the connection.
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.drop(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop discards client input and notices disconnects.
func (s *Server) readLoop(c *client) {
	defer s.wg.Done()
	defer s.drop(c, websocket.StatusNormalClosure, "")

	for {
		if _, _, err := c.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// drop unregisters c and closes its connection. Only the first call for a
// client has any effect.
func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	close(c.send)
	n := len(s.clients)
	s.mu.Unlock()

	_ = c.conn.Close(code, reason)
	s.logger.Info().Int("clients", n).Msg("Client disconnected")
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, r.Host); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write index page")
	}
}

// The host comes from the request, so it goes through html/template escaping.
var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>zonesync</title></head>
<body>
  <h1>zonesync</h1>
  <p>Live feed: <code>ws://{{.}}/ws</code></p>
  <p>Status: <a href="http://{{.}}/health">/health</a></p>
</body>
</html>`))

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}
