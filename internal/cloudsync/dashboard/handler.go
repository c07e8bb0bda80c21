package dashboard

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/daemon"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

var _ daemon.Notifier = (*Handler)(nil)

// Handler turns daemon events into dashboard messages. It is safe for
// concurrent use.
type Handler struct {
	server *Server
	logger *zerolog.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler broadcasting through server. New clients of
// server receive the handler's current stats on connect, so create the
// handler before starting the server.
func NewHandler(server *Server, logger *zerolog.Logger) *Handler {
	h := &Handler{
		server: server,
		logger: logging.OrDefault(logger, "dashboard"),
	}
	server.welcome = h.statsMessage
	return h
}

// SyncComplete handles a finished poll of scope
func (h *Handler) SyncComplete(scope record.Scope, lists int) {
	h.mu.Lock()
	h.stats.Polls++
	h.stats.Fetched += lists
	h.stats.LastSync = time.Now()
	h.mu.Unlock()

	h.send(MessageTypeSyncComplete, SyncCompleteData{Scope: scope.String(), Lists: lists})
	if lists > 0 {
		h.broadcastStats()
	}
}

// ItemPushed handles an uploaded list
func (h *Handler) ItemPushed(id, name string) {
	h.logger.Debug().Str("id", id).Str("name", name).Msg("List pushed")

	h.mu.Lock()
	h.stats.Pushed++
	h.mu.Unlock()

	h.send(MessageTypeItemPushed, ItemPushedData{ID: id, Name: name})
	h.broadcastStats()
}

// ShareCreated handles a new share
func (h *Handler) ShareCreated(id, shareID, title string) {
	h.logger.Debug().Str("id", id).Str("share", shareID).Msg("List shared")

	h.mu.Lock()
	h.stats.Shared++
	h.mu.Unlock()

	h.send(MessageTypeShareCreated, ShareCreatedData{ID: id, ShareID: shareID, Title: title})
}

// SyncError handles a failed poll or push
func (h *Handler) SyncError(op string, err error) {
	h.mu.Lock()
	h.stats.Errors++
	h.mu.Unlock()

	h.send(MessageTypeSyncError, SyncErrorData{Op: op, Error: err.Error()})
}

// Stats returns the current totals
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) statsMessage() Message {
	stats := h.Stats()
	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal stats")
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(typ)).Msg("Failed to marshal message data")
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
