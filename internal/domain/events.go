package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the bank sync exchange.
const (
	RoutingKeySyncCompleted    = "bank_sync.completed"
	RoutingKeySyncFailed       = "bank_sync.failed"
	RoutingKeyRefreshRequested = "bank_sync.refresh.requested"
)

// SyncCompletedEvent is published after every sync log is written.
type SyncCompletedEvent struct {
	ConnectionID      uuid.UUID  `json:"connection_id"`
	UserID            string     `json:"user_id"`
	Provider          string     `json:"provider"`
	SyncType          SyncType   `json:"sync_type"`
	Status            SyncStatus `json:"status"`
	RecordsFetched    int        `json:"records_fetched"`
	RecordsImported   int        `json:"records_imported"`
	DuplicatesSkipped int        `json:"duplicates_skipped"`
	Timestamp         time.Time  `json:"timestamp"`
}

// RefreshRequestedEvent asks the service to refresh one connection.
type RefreshRequestedEvent struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}
