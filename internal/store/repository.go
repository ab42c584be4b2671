/**
 * @description
 * This file defines the repository interfaces the bank sync service depends on. The
 * orchestrator and the budget engine only see these contracts, so PostgreSQL and the
 * in-memory store are interchangeable.
 *
 * @dependencies
 * - github.com/google/uuid: For connection identifiers.
 * - github.com/shopspring/decimal: For ledger amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
)

var (
	// ErrConnectionNotFound is returned when no connection matches both id and owner.
	ErrConnectionNotFound = errors.New("bank connection not found")
)

// ConnectionRepository persists BankConnection rows. Every per-connection lookup is
// scoped to the owning user.
type ConnectionRepository interface {
	CreateConnection(ctx context.Context, conn *domain.BankConnection) error
	GetConnection(ctx context.Context, id uuid.UUID, userID string) (*domain.BankConnection, error)
	UpdateConnection(ctx context.Context, conn *domain.BankConnection) error
	// DeleteConnection removes the connection and its sync logs. It reports whether a row was deleted.
	DeleteConnection(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	// ListConnectionsByUser returns the user's connections, newest first.
	ListConnectionsByUser(ctx context.Context, userID string) ([]domain.BankConnection, error)
	// ListActiveConnections returns every active connection across users, oldest sync first.
	ListActiveConnections(ctx context.Context) ([]domain.BankConnection, error)
}

// SyncLogRepository appends and reads sync audit records.
type SyncLogRepository interface {
	CreateSyncLog(ctx context.Context, entry *domain.SyncLog) error
	// ListSyncLogs returns at most limit logs of the connection, newest first.
	ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]domain.SyncLog, error)
}

// ExpenseRepository is the slice of the expense ledger the service reads and writes.
type ExpenseRepository interface {
	// ExpenseExistsByDateAndAmount reports whether the user already has a ledger row on
	// date whose absolute amount equals amount.
	ExpenseExistsByDateAndAmount(ctx context.Context, userID string, date domain.Date, amount decimal.Decimal) (bool, error)
	CreateExpense(ctx context.Context, expense *domain.Expense) error
	// MonthlyCategoryTotals sums non-income rows per month and category over [from, to).
	MonthlyCategoryTotals(ctx context.Context, userID string, from, to domain.Date) ([]domain.MonthlyCategoryTotal, error)
}

// Store groups every repository the service needs.
type Store interface {
	ConnectionRepository
	SyncLogRepository
	ExpenseRepository
}
