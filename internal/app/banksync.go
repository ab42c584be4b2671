/**
 * @description
 * This file contains the core business logic of the banksync-service. The
 * `BankSyncService` drives a bank connection through its consent lifecycle and
 * pulls transactions into the expense ledger.
 *
 * Key features:
 * - Connection state machine: pending -> active | rejected, account switching while active.
 * - Full sync over a date range and cursor-based refresh, both audited in bank_sync_logs.
 * - Provider failures during a sync are recorded as failed logs instead of being returned.
 * - Publishes bank_sync.completed / bank_sync.failed events for downstream consumers.
 *
 * @dependencies
 * - github.com/google/uuid: For connection and log identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/connector, pkg/rabbitmq: For provider access and event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finmind/banksync-service/internal/config"
	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/internal/store"
	"github.com/finmind/banksync-service/pkg/connector"
	"github.com/finmind/banksync-service/pkg/rabbitmq"
)

const (
	DefaultSyncLookbackDays = 180
	MaxSyncLogs             = 50

	defaultSyncTimeout = 90 * time.Second
	syncQuotaWindow    = time.Minute
)

// InitiateResult is returned when a consent flow starts.
type InitiateResult struct {
	ConnectionID  uuid.UUID            `json:"connection_id"`
	ConsentHandle string               `json:"consent_handle"`
	RedirectURL   *string              `json:"redirect_url"`
	Status        domain.ConsentStatus `json:"status"`
}

// ConfirmResult reports the connection status after a consent check. Accounts is
// only populated when the provider approved the consent.
type ConfirmResult struct {
	ConnectionID uuid.UUID               `json:"connection_id"`
	Status       domain.ConnectionStatus `json:"status"`
	Accounts     []domain.BankAccount    `json:"accounts,omitempty"`
}

type SelectAccountResult struct {
	ConnectionID uuid.UUID               `json:"connection_id"`
	AccountID    string                  `json:"account_id"`
	Label        string                  `json:"label"`
	Status       domain.ConnectionStatus `json:"status"`
}

// RateLimitError is returned when a user exceeds the manual sync quota.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %ds", domain.ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// BankSyncService provides the bank connection and sync use cases.
type BankSyncService struct {
	repo            store.Store
	registry        *connector.Registry
	importer        *Importer
	locker          ConnectionLocker
	eventProducer   rabbitmq.Publisher
	exchange        string
	defaultCurrency string
	syncTimeout     time.Duration

	rateLimiter SyncRateLimiter
	quotas      map[domain.SyncType]SyncQuota
	budgetCache BudgetCache

	now func() time.Time
}

// NewBankSyncService creates a new bank sync service instance. It uses an in-process
// connection locker until SetConnectionLocker installs a shared one.
func NewBankSyncService(repo store.Store, registry *connector.Registry, producer rabbitmq.Publisher, cfg config.Config) *BankSyncService {
	currency := strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}
	timeout := time.Duration(cfg.SyncTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}

	quotas := map[domain.SyncType]SyncQuota{
		domain.SyncTypeFull:    {Limit: cfg.SyncRateLimitPerMinute, Window: syncQuotaWindow},
		domain.SyncTypeRefresh: {Limit: cfg.RefreshRateLimitPerMinute, Window: syncQuotaWindow},
	}

	return &BankSyncService{
		repo:            repo,
		registry:        registry,
		importer:        NewImporter(repo),
		locker:          NewLocalConnectionLocker(),
		eventProducer:   producer,
		exchange:        cfg.BankSyncExchange,
		defaultCurrency: currency,
		syncTimeout:     timeout,
		quotas:          quotas,
		now:             time.Now,
	}
}

func (s *BankSyncService) SetConnectionLocker(locker ConnectionLocker) {
	if locker != nil {
		s.locker = locker
	}
}

func (s *BankSyncService) SetSyncRateLimiter(limiter SyncRateLimiter) {
	s.rateLimiter = limiter
}

// SetBudgetCache lets syncs that import rows drop the user's cached budget suggestions.
func (s *BankSyncService) SetBudgetCache(cache BudgetCache) {
	s.budgetCache = cache
}

// SyncTimeout bounds every connector call made during a sync or refresh.
func (s *BankSyncService) SyncTimeout() time.Duration {
	return s.syncTimeout
}

func (s *BankSyncService) today() domain.Date {
	return domain.DateOf(s.now().UTC())
}

// GetAvailableProviders returns the registered provider names.
func (s *BankSyncService) GetAvailableProviders() []string {
	return s.registry.Providers()
}

// InitiateConnection starts the consent flow with a provider and stores a pending connection.
func (s *BankSyncService) InitiateConnection(ctx context.Context, userID, provider string, opts connector.ConsentOptions) (*InitiateResult, error) {
	provider = strings.TrimSpace(provider)
	c, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", domain.ErrInvalidArgument)
	}
	opts.Currency = currency

	consent, err := c.CreateConsent(ctx, userID, opts)
	if err != nil {
		log.Printf("level=warn component=bank_sync msg=\"consent creation failed\" provider=%s user_id=%s err=%v", provider, userID, err)
		return nil, err
	}

	now := s.now().UTC()
	conn := &domain.BankConnection{
		ID:            uuid.New(),
		UserID:        userID,
		Provider:      provider,
		Status:        domain.ConnectionStatusPending,
		ConsentHandle: consent.ConsentHandle,
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to persist connection: %w", err)
	}

	log.Printf("level=info component=bank_sync msg=\"bank connection initiated\" connection_id=%s provider=%s user_id=%s", conn.ID, provider, userID)
	return &InitiateResult{
		ConnectionID:  conn.ID,
		ConsentHandle: consent.ConsentHandle,
		RedirectURL:   consent.RedirectURL,
		Status:        consent.Status,
	}, nil
}

// ConfirmConsent polls the provider for the consent status. On approval the account
// catalog is fetched and the connection becomes active on a default account.
func (s *BankSyncService) ConfirmConsent(ctx context.Context, userID string, connectionID uuid.UUID) (*ConfirmResult, error) {
	conn, err := s.getConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	c, err := s.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	status, err := c.CheckConsentStatus(ctx, conn.ConsentHandle)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{ConnectionID: conn.ID}
	switch status {
	case domain.ConsentStatusApproved:
		accounts, err := c.FetchAccounts(ctx, conn.ConsentHandle)
		if err != nil {
			return nil, err
		}
		result.Accounts = accounts
		if len(accounts) == 0 {
			// The provider session can lag behind the approval.
			if conn.Status != domain.ConnectionStatusActive {
				conn.Status = domain.ConnectionStatusPending
			}
			break
		}
		chosen := accounts[0]
		if conn.Status == domain.ConnectionStatusActive && conn.AccountID != nil {
			if current, ok := findAccount(accounts, *conn.AccountID); ok {
				chosen = current
			}
		}
		s.applyAccount(conn, chosen)
	case domain.ConsentStatusRejected:
		conn.Status = domain.ConnectionStatusRejected
	default:
		conn.Status = domain.ConnectionStatusPending
	}

	if err := s.repo.UpdateConnection(ctx, conn); err != nil {
		return nil, s.mapStoreError(err)
	}

	result.Status = conn.Status
	log.Printf("level=info component=bank_sync msg=\"consent checked\" connection_id=%s consent_status=%s status=%s accounts=%d", conn.ID, status, conn.Status, len(result.Accounts))
	return result, nil
}

// SelectAccount switches the account a connection syncs.
func (s *BankSyncService) SelectAccount(ctx context.Context, userID string, connectionID uuid.UUID, accountID string) (*SelectAccountResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", domain.ErrInvalidArgument)
	}

	conn, err := s.getConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status == domain.ConnectionStatusRejected {
		return nil, fmt.Errorf("%w, start a new connection", domain.ErrConsentRejected)
	}
	c, err := s.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	accounts, err := c.FetchAccounts(ctx, conn.ConsentHandle)
	if err != nil {
		return nil, err
	}
	matched, ok := findAccount(accounts, accountID)
	if !ok {
		return nil, fmt.Errorf("%w: account %s not found", domain.ErrInvalidArgument, accountID)
	}

	s.applyAccount(conn, matched)
	if err := s.repo.UpdateConnection(ctx, conn); err != nil {
		return nil, s.mapStoreError(err)
	}

	log.Printf("level=info component=bank_sync msg=\"account selected\" connection_id=%s account_id=%s", conn.ID, matched.AccountID)
	return &SelectAccountResult{
		ConnectionID: conn.ID,
		AccountID:    matched.AccountID,
		Label:        matched.Label,
		Status:       conn.Status,
	}, nil
}

// CheckSyncRateLimit takes one unit of the user's quota for syncType. Full syncs and
// refreshes have separate quotas. Limiter outages are logged and the request is allowed.
func (s *BankSyncService) CheckSyncRateLimit(ctx context.Context, userID string, syncType domain.SyncType) error {
	quota, ok := s.quotas[syncType]
	if s.rateLimiter == nil || !ok || quota.Limit <= 0 {
		return nil
	}
	usage, err := s.rateLimiter.ConsumeSyncQuota(ctx, userID, syncType, quota)
	if err != nil {
		log.Printf("level=warn component=bank_sync msg=\"sync rate limiter unavailable\" user_id=%s sync_type=%s err=%v", userID, syncType, err)
		return nil
	}
	if !usage.Allowed {
		log.Printf("level=info component=bank_sync msg=\"sync quota exhausted\" user_id=%s sync_type=%s retry_after=%d", userID, syncType, usage.RetryAfterSeconds)
		return &RateLimitError{RetryAfterSeconds: usage.RetryAfterSeconds}
	}
	return nil
}

// SyncConnection fetches the closed range [from, to] for an active connection. A nil
// to defaults to today and a nil from defaults to 180 days before to.
func (s *BankSyncService) SyncConnection(ctx context.Context, userID string, connectionID uuid.UUID, from, to *domain.Date) (*domain.SyncLog, error) {
	conn, err := s.getConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(conn); err != nil {
		return nil, err
	}

	toDate := s.today()
	if to != nil {
		toDate = *to
	}
	fromDate := toDate.AddDays(-DefaultSyncLookbackDays)
	if from != nil {
		fromDate = *from
	}
	if fromDate.After(toDate) {
		return nil, fmt.Errorf("%w: from_date %s is after to_date %s", domain.ErrInvalidArgument, fromDate, toDate)
	}

	c, err := s.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}
	accountID := *conn.AccountID
	return s.runSync(ctx, conn, domain.SyncTypeFull, func(ctx context.Context) (*domain.SyncResult, error) {
		return c.FetchTransactions(ctx, conn.ConsentHandle, accountID, fromDate, toDate)
	})
}

// RefreshConnection fetches everything after the stored cursor.
func (s *BankSyncService) RefreshConnection(ctx context.Context, userID string, connectionID uuid.UUID) (*domain.SyncLog, error) {
	conn, err := s.getConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(conn); err != nil {
		return nil, err
	}
	c, err := s.registry.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	accountID := *conn.AccountID
	cursor := conn.SyncCursor
	return s.runSync(ctx, conn, domain.SyncTypeRefresh, func(ctx context.Context) (*domain.SyncResult, error) {
		return c.RefreshTransactions(ctx, conn.ConsentHandle, accountID, cursor)
	})
}

// Disconnect hard-deletes a connection together with its sync logs.
func (s *BankSyncService) Disconnect(ctx context.Context, userID string, connectionID uuid.UUID) error {
	deleted, err := s.repo.DeleteConnection(ctx, connectionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}
	log.Printf("level=info component=bank_sync msg=\"bank connection disconnected\" connection_id=%s user_id=%s", connectionID, userID)
	return nil
}

// GetConnections returns the user's connections, newest first.
func (s *BankSyncService) GetConnections(ctx context.Context, userID string) ([]domain.BankConnection, error) {
	return s.repo.ListConnectionsByUser(ctx, userID)
}

// GetSyncLogs returns the 50 most recent sync logs of a connection, newest first.
func (s *BankSyncService) GetSyncLogs(ctx context.Context, userID string, connectionID uuid.UUID) ([]domain.SyncLog, error) {
	conn, err := s.getConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSyncLogs(ctx, conn.ID, MaxSyncLogs)
}

type fetchFunc func(ctx context.Context) (*domain.SyncResult, error)

// runSync executes one sync attempt under the connection lock and always records a
// log entry. Only lock and bookkeeping failures are returned to the caller.
func (s *BankSyncService) runSync(ctx context.Context, conn *domain.BankConnection, syncType domain.SyncType, fetch fetchFunc) (*domain.SyncLog, error) {
	release, err := s.locker.Acquire(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	entry := &domain.SyncLog{
		ID:           uuid.New(),
		ConnectionID: conn.ID,
		SyncType:     syncType,
		Status:       domain.SyncStatusSuccess,
	}

	// Bookkeeping must survive a cancelled request so a timeout is still audited.
	persistCtx := context.WithoutCancel(ctx)

	if syncErr := s.fetchAndImport(ctx, persistCtx, conn, entry, fetch); syncErr != nil {
		message := truncateRunes(syncErr.Error(), domain.MaxSyncErrorLength)
		entry.Status = domain.SyncStatusFailed
		entry.ErrorMessage = &message
		log.Printf("level=error component=bank_sync msg=\"sync failed\" connection_id=%s user_id=%s sync_type=%s err=%v", conn.ID, conn.UserID, syncType, syncErr)
	}

	entry.DurationMs = time.Since(started).Milliseconds()
	entry.CreatedAt = s.now().UTC()
	if err := s.repo.CreateSyncLog(persistCtx, entry); err != nil {
		return nil, s.mapStoreError(err)
	}

	// Rows written before a failure still change the ledger.
	if entry.RecordsImported > 0 && s.budgetCache != nil {
		s.budgetCache.InvalidateUser(persistCtx, conn.UserID)
	}

	s.publishSyncEvent(persistCtx, conn, entry)

	log.Printf("level=info component=bank_sync msg=\"sync complete\" connection_id=%s sync_type=%s status=%s fetched=%d imported=%d skipped=%d duration_ms=%d",
		conn.ID, syncType, entry.Status, entry.RecordsFetched, entry.RecordsImported, entry.DuplicatesSkipped, entry.DurationMs)
	return entry, nil
}

func (s *BankSyncService) fetchAndImport(ctx, persistCtx context.Context, conn *domain.BankConnection, entry *domain.SyncLog, fetch fetchFunc) error {
	callCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := fetch(callCtx)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: connector returned no result", domain.ErrProviderFailure)
	}
	entry.RecordsFetched = len(result.Transactions)

	imported, skipped, err := s.importer.Import(ctx, conn.UserID, conn.Currency, result.Transactions)
	entry.RecordsImported = imported
	entry.DuplicatesSkipped = skipped
	if err != nil {
		return err
	}

	syncedAt := s.now().UTC()
	conn.LastSyncAt = &syncedAt
	if result.Cursor != nil {
		conn.SyncCursor = result.Cursor
	}
	if err := s.repo.UpdateConnection(persistCtx, conn); err != nil {
		return fmt.Errorf("failed to update connection after sync: %w", err)
	}
	return nil
}

func (s *BankSyncService) publishSyncEvent(ctx context.Context, conn *domain.BankConnection, entry *domain.SyncLog) {
	if s.eventProducer == nil {
		return
	}
	routingKey := domain.RoutingKeySyncCompleted
	if entry.Status == domain.SyncStatusFailed {
		routingKey = domain.RoutingKeySyncFailed
	}
	event := domain.SyncCompletedEvent{
		ConnectionID:      conn.ID,
		UserID:            conn.UserID,
		Provider:          conn.Provider,
		SyncType:          entry.SyncType,
		Status:            entry.Status,
		RecordsFetched:    entry.RecordsFetched,
		RecordsImported:   entry.RecordsImported,
		DuplicatesSkipped: entry.DuplicatesSkipped,
		Timestamp:         entry.CreatedAt,
	}
	if err := s.eventProducer.Publish(ctx, s.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=bank_sync msg=\"failed to publish sync event\" connection_id=%s routing_key=%s err=%v", conn.ID, routingKey, err)
	}
}

func (s *BankSyncService) getConnection(ctx context.Context, userID string, connectionID uuid.UUID) (*domain.BankConnection, error) {
	conn, err := s.repo.GetConnection(ctx, connectionID, userID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return conn, nil
}

func (s *BankSyncService) mapStoreError(err error) error {
	if errors.Is(err, store.ErrConnectionNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *BankSyncService) applyAccount(conn *domain.BankConnection, account domain.BankAccount) {
	accountID := account.AccountID
	label := account.Label
	conn.AccountID = &accountID
	conn.AccountLabel = &label
	if account.Currency != "" {
		conn.Currency = account.Currency
	}
	conn.Status = domain.ConnectionStatusActive
}

func requireActive(conn *domain.BankConnection) error {
	if conn.Status != domain.ConnectionStatusActive || conn.AccountID == nil {
		return fmt.Errorf("%w (status=%s), complete the consent flow first", domain.ErrNotActive, conn.Status)
	}
	return nil
}

func findAccount(accounts []domain.BankAccount, accountID string) (domain.BankAccount, bool) {
	for _, a := range accounts {
		if a.AccountID == accountID {
			return a, true
		}
	}
	return domain.BankAccount{}, false
}
