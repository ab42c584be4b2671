/**
 * @description
 * This file provides the PostgreSQL implementation of the bank sync repositories:
 * connections, sync logs, and the ledger slice used for import and budgeting.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Amounts travel as numeric text and are parsed into decimals.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
)

const connectionColumns = `
	id, user_id, provider, status, consent_handle, account_id, account_label,
	currency, sync_cursor, last_sync_at, created_at, updated_at`

// PostgresRepository implements Store on top of a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Store = (*PostgresRepository)(nil)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func scanConnection(row pgx.Row) (*domain.BankConnection, error) {
	var (
		conn     domain.BankConnection
		status   string
		currency string
	)
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &status, &conn.ConsentHandle,
		&conn.AccountID, &conn.AccountLabel, &currency, &conn.SyncCursor,
		&conn.LastSyncAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.Status = domain.ConnectionStatus(status)
	conn.Currency = currency
	return &conn, nil
}

func collectConnections(rows pgx.Rows) ([]domain.BankConnection, error) {
	defer rows.Close()
	connections := []domain.BankConnection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *conn)
	}
	return connections, rows.Err()
}

// CreateConnection inserts a new connection row.
func (r *PostgresRepository) CreateConnection(ctx context.Context, conn *domain.BankConnection) error {
	query := `
		INSERT INTO bank_connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		conn.ID, conn.UserID, conn.Provider, string(conn.Status), conn.ConsentHandle,
		conn.AccountID, conn.AccountLabel, conn.Currency, conn.SyncCursor,
		conn.LastSyncAt, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		log.Printf("level=error component=store op=create_connection connection_id=%s err=%v", conn.ID, err)
		return err
	}
	return nil
}

// GetConnection fetches a connection owned by userID.
func (r *PostgresRepository) GetConnection(ctx context.Context, id uuid.UUID, userID string) (*domain.BankConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE id = $1 AND user_id = $2`
	conn, err := scanConnection(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return conn, nil
}

// UpdateConnection rewrites the mutable columns of a connection and bumps updated_at.
func (r *PostgresRepository) UpdateConnection(ctx context.Context, conn *domain.BankConnection) error {
	query := `
		UPDATE bank_connections
		SET status = $3, account_id = $4, account_label = $5, currency = $6,
		    sync_cursor = $7, last_sync_at = $8, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		conn.ID, conn.UserID, string(conn.Status), conn.AccountID, conn.AccountLabel,
		conn.Currency, conn.SyncCursor, conn.LastSyncAt,
	).Scan(&conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConnectionNotFound
		}
		log.Printf("level=error component=store op=update_connection connection_id=%s err=%v", conn.ID, err)
		return err
	}
	return nil
}

// DeleteConnection hard-deletes a connection; its sync logs go with it via ON DELETE CASCADE.
func (r *PostgresRepository) DeleteConnection(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bank_connections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		log.Printf("level=error component=store op=delete_connection connection_id=%s err=%v", id, err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListConnectionsByUser(ctx context.Context, userID string) ([]domain.BankConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE user_id = $1 ORDER BY created_at DESC, id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectConnections(rows)
}

func (r *PostgresRepository) ListActiveConnections(ctx context.Context) ([]domain.BankConnection, error) {
	query := `
		SELECT ` + connectionColumns + ` FROM bank_connections
		WHERE status = 'active' AND account_id IS NOT NULL
		ORDER BY last_sync_at ASC NULLS FIRST, created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectConnections(rows)
}

// CreateSyncLog appends an audit record.
func (r *PostgresRepository) CreateSyncLog(ctx context.Context, entry *domain.SyncLog) error {
	query := `
		INSERT INTO bank_sync_logs (
			id, connection_id, sync_type, status, records_fetched, records_imported,
			duplicates_skipped, error_message, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.ConnectionID, string(entry.SyncType), string(entry.Status),
		entry.RecordsFetched, entry.RecordsImported, entry.DuplicatesSkipped,
		entry.ErrorMessage, entry.DurationMs, entry.CreatedAt,
	)
	if err != nil {
		log.Printf("level=error component=store op=create_sync_log connection_id=%s err=%v", entry.ConnectionID, err)
		return err
	}
	return nil
}

func (r *PostgresRepository) ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]domain.SyncLog, error) {
	query := `
		SELECT id, connection_id, sync_type, status, records_fetched, records_imported,
		       duplicates_skipped, error_message, duration_ms, created_at
		FROM bank_sync_logs
		WHERE connection_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []domain.SyncLog{}
	for rows.Next() {
		var (
			entry            domain.SyncLog
			syncType, status string
		)
		if err := rows.Scan(
			&entry.ID, &entry.ConnectionID, &syncType, &status, &entry.RecordsFetched,
			&entry.RecordsImported, &entry.DuplicatesSkipped, &entry.ErrorMessage,
			&entry.DurationMs, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.SyncType = domain.SyncType(syncType)
		entry.Status = domain.SyncStatus(status)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ExpenseExistsByDateAndAmount implements the import duplicate check.
func (r *PostgresRepository) ExpenseExistsByDateAndAmount(ctx context.Context, userID string, date domain.Date, amount decimal.Decimal) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM expenses
			WHERE user_id = $1 AND spent_at = $2::date AND ABS(amount) = $3::numeric
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, date.String(), amount.Abs().String()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepository) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	query := `
		INSERT INTO expenses (
			id, user_id, amount, currency, expense_type, category, notes, spent_at, source, created_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8::date, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		expense.ID, expense.UserID, expense.Amount.String(), expense.Currency,
		string(expense.ExpenseType), expense.Category, expense.Notes,
		expense.SpentAt.String(), expense.Source, expense.CreatedAt,
	)
	if err != nil {
		log.Printf("level=error component=store op=create_expense expense_id=%s err=%v", expense.ID, err)
		return err
	}
	return nil
}

func (r *PostgresRepository) MonthlyCategoryTotals(ctx context.Context, userID string, from, to domain.Date) ([]domain.MonthlyCategoryTotal, error) {
	query := `
		SELECT to_char(spent_at, 'YYYY-MM') AS month,
		       COALESCE(NULLIF(TRIM(category), ''), 'uncategorized') AS category,
		       SUM(amount)::text AS total
		FROM expenses
		WHERE user_id = $1
		  AND spent_at >= $2::date AND spent_at < $3::date
		  AND expense_type <> 'INCOME'
		GROUP BY 1, 2
		ORDER BY 1, 2
	`
	rows, err := r.db.Query(ctx, query, userID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []domain.MonthlyCategoryTotal{}
	for rows.Next() {
		var (
			item     domain.MonthlyCategoryTotal
			rawTotal string
		)
		if err := rows.Scan(&item.Month, &item.Category, &rawTotal); err != nil {
			return nil, err
		}
		item.Total, err = decimal.NewFromString(rawTotal)
		if err != nil {
			return nil, fmt.Errorf("invalid monthly total %q: %w", rawTotal, err)
		}
		totals = append(totals, item)
	}
	return totals, rows.Err()
}
