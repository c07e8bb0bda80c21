package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: logging.Nop()})
	require.NoError(t, server.Start(), "failed to start server")
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and consumes the welcome message.
func dial(ctx context.Context, t *testing.T, server *Server) (*websocket.Conn, Message) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	require.NoError(t, err, "failed to connect WebSocket")
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return conn, read(ctx, t, conn)
}

func read(ctx context.Context, t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err, "failed to read message")
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	require.Eventually(t, func() bool { return server.ClientCount() == n },
		2*time.Second, 10*time.Millisecond, "expected %d clients", n)
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: logging.Nop()})

	require.NoError(t, server.Start())
	assert.NotEqual(t, "127.0.0.1:0", server.Addr(), "Addr() still reports the requested port after listening")
	require.NoError(t, server.Stop())
}

func TestStopWithoutStart(t *testing.T) {
	server := NewServer(&Config{Logger: logging.Nop()})
	assert.NoError(t, server.Stop())
}

func TestWebSocketConnection(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(ctx, t, server)
	assert.Equal(t, MessageTypeStats, welcome.Type)
	assert.False(t, welcome.Timestamp.IsZero(), "welcome message has no timestamp")
	waitForClients(t, server, 1)
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i], _ = dial(ctx, t, server)
	}
	waitForClients(t, server, numClients)

	server.Broadcast(Message{Type: MessageTypeSyncComplete})
	for i, conn := range clients {
		assert.Equal(t, MessageTypeSyncComplete, read(ctx, t, conn).Type, "client %d", i)
	}

	_ = clients[0].Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, numClients-1)
}

func TestHandlerBroadcasts(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: logging.Nop()})
	handler := NewHandler(server, logging.Nop())
	require.NoError(t, server.Start())
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(ctx, t, server)
	waitForClients(t, server, 1)

	handler.ShareCreated("list-1", "share-1", "Party")
	msg := read(ctx, t, conn)
	require.Equal(t, MessageTypeShareCreated, msg.Type)
	var shared ShareCreatedData
	require.NoError(t, json.Unmarshal(msg.Data, &shared))
	assert.Equal(t, ShareCreatedData{ID: "list-1", ShareID: "share-1", Title: "Party"}, shared)

	handler.ItemPushed("list-1", "Party")
	assert.Equal(t, MessageTypeItemPushed, read(ctx, t, conn).Type)
	msg = read(ctx, t, conn)
	require.Equal(t, MessageTypeStats, msg.Type)
	var stats StatsData
	require.NoError(t, json.Unmarshal(msg.Data, &stats))
	assert.Equal(t, 1, stats.Pushed)
	assert.Equal(t, 1, stats.Shared)

	handler.SyncError("push", errors.New("quota exceeded"))
	msg = read(ctx, t, conn)
	assert.Equal(t, MessageTypeSyncError, msg.Type)
	var failed SyncErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &failed))
	assert.Equal(t, "quota exceeded", failed.Error)
}

func TestHandlerStatsOnConnect(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: logging.Nop()})
	handler := NewHandler(server, logging.Nop())

	handler.SyncComplete(record.ScopeShared, 2)
	handler.SyncComplete(record.ScopeLocal, 0)

	require.NoError(t, server.Start())
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(ctx, t, server)
	var stats StatsData
	require.NoError(t, json.Unmarshal(welcome.Data, &stats))
	assert.Equal(t, 2, stats.Polls)
	assert.Equal(t, 2, stats.Fetched)
	assert.False(t, stats.LastSync.IsZero(), "LastSync not set")
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Clients)
}

func TestRootEndpoint(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + server.Addr() + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRootEndpointEscapesHost(t *testing.T) {
	server := NewServer(&Config{Logger: logging.Nop()})
	t.Cleanup(func() { _ = server.Stop() })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = `evil"><script>alert(1)</script>`
	rec := httptest.NewRecorder()
	server.serveIndex(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "<script>", "index page echoes the raw host")
	assert.Contains(t, body, "&lt;script&gt;")
}
