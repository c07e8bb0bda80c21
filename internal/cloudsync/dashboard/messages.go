package dashboard

import (
	"time"

	"github.com/goccy/go-json"
)

// MessageType names a dashboard event.
type MessageType string

const (
	MessageTypeSyncComplete MessageType = "sync_complete"
	MessageTypeItemPushed   MessageType = "item_pushed"
	MessageTypeShareCreated MessageType = "share_created"
	MessageTypeSyncError    MessageType = "sync_error"
	// MessageTypeStats is also the first message every client receives.
	MessageTypeStats MessageType = "stats"
)

// Message is the envelope of everything sent to clients. Data holds one of
// the *Data payloads, chosen by Type.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompleteData reports one poll of a database.
type SyncCompleteData struct {
	Scope string `json:"scope"`
	Lists int    `json:"lists"`
}

// ItemPushedData names a list pushed from the outbox.
type ItemPushedData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ShareCreatedData names a list that was shared and its share record.
type ShareCreatedData struct {
	ID      string `json:"id"`
	ShareID string `json:"share_id"`
	Title   string `json:"title"`
}

type SyncErrorData struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// StatsData holds totals since the handler was created.
type StatsData struct {
	Polls    int       `json:"polls"`
	Fetched  int       `json:"fetched"`
	Pushed   int       `json:"pushed"`
	Shared   int       `json:"shared"`
	Errors   int       `json:"errors"`
	LastSync time.Time `json:"last_sync,omitempty"`
}
