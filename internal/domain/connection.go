/**
 * @description
 * This file defines the persisted bank sync entities: a user's connection to a
 * provider account and the append-only audit log written for every sync attempt.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the lifecycle state of a BankConnection.
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusActive   ConnectionStatus = "active"
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// SyncType distinguishes a date-range fetch from a cursor-based refresh.
type SyncType string

const (
	SyncTypeFull    SyncType = "full"
	SyncTypeRefresh SyncType = "refresh"
)

// SyncStatus is the outcome of one sync attempt.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// MaxSyncErrorLength bounds the error text kept on a failed SyncLog.
const MaxSyncErrorLength = 2000

// BankConnection links one user to one provider account.
// AccountID stays nil until the connection reaches the active status.
type BankConnection struct {
	ID            uuid.UUID        `json:"id"`
	UserID        string           `json:"-"`
	Provider      string           `json:"provider"`
	Status        ConnectionStatus `json:"status"`
	ConsentHandle string           `json:"-"`
	AccountID     *string          `json:"account_id"`
	AccountLabel  *string          `json:"account_label"`
	Currency      string           `json:"currency"`
	SyncCursor    *string          `json:"-"`
	LastSyncAt    *time.Time       `json:"last_sync_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"-"`
}

// SyncLog is an immutable audit record of one sync attempt.
type SyncLog struct {
	ID                uuid.UUID  `json:"id"`
	ConnectionID      uuid.UUID  `json:"connection_id"`
	SyncType          SyncType   `json:"sync_type"`
	Status            SyncStatus `json:"status"`
	RecordsFetched    int        `json:"records_fetched"`
	RecordsImported   int        `json:"records_imported"`
	DuplicatesSkipped int        `json:"duplicates_skipped"`
	ErrorMessage      *string    `json:"error_message"`
	DurationMs        int64      `json:"duration_ms"`
	CreatedAt         time.Time  `json:"created_at"`
}
