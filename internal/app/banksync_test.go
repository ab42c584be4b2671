package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finmind/banksync-service/internal/config"
	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/internal/store"
	"github.com/finmind/banksync-service/pkg/connector"
	"github.com/finmind/banksync-service/pkg/connector/mock"
)

var fixedNow = time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *publisherStub) Close() {}

// stubConnector lets tests script consent outcomes and fetch failures.
type stubConnector struct {
	status   domain.ConsentStatus
	accounts []domain.BankAccount
	fetch    func(ctx context.Context) (*domain.SyncResult, error)
}

func (s *stubConnector) ProviderName() string { return "stub" }

func (s *stubConnector) CreateConsent(ctx context.Context, userID string, opts connector.ConsentOptions) (*connector.ConsentResult, error) {
	redirect := "https://bank.example/consent"
	return &connector.ConsentResult{ConsentHandle: "stub-handle", RedirectURL: &redirect, Status: domain.ConsentStatusPending}, nil
}

func (s *stubConnector) CheckConsentStatus(ctx context.Context, consentHandle string) (domain.ConsentStatus, error) {
	return s.status, nil
}

func (s *stubConnector) FetchAccounts(ctx context.Context, consentHandle string) ([]domain.BankAccount, error) {
	return s.accounts, nil
}

func (s *stubConnector) FetchTransactions(ctx context.Context, consentHandle, accountID string, from, to domain.Date) (*domain.SyncResult, error) {
	return s.fetch(ctx)
}

func (s *stubConnector) RefreshTransactions(ctx context.Context, consentHandle, accountID string, cursor *string) (*domain.SyncResult, error) {
	return s.fetch(ctx)
}

type testEnv struct {
	svc       *BankSyncService
	repo      *store.MemoryStore
	publisher *publisherStub
	stub      *stubConnector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := store.NewMemoryStore()
	stub := &stubConnector{status: domain.ConsentStatusPending}

	registry := connector.NewRegistry()
	registry.Register(mock.ProviderName, func() connector.Connector {
		return mock.New(mock.WithClock(func() time.Time { return fixedNow }))
	})
	registry.Register("stub", func() connector.Connector { return stub })

	publisher := &publisherStub{}
	svc := NewBankSyncService(repo, registry, publisher, config.Config{BankSyncExchange: "bank_sync_events"})
	svc.now = func() time.Time { return fixedNow }
	return &testEnv{svc: svc, repo: repo, publisher: publisher, stub: stub}
}

// activeConnection returns a mock connection that completed the consent flow.
func (e *testEnv) activeConnection(t *testing.T, userID string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	initiated, err := e.svc.InitiateConnection(ctx, userID, mock.ProviderName, connector.ConsentOptions{})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := e.svc.ConfirmConsent(ctx, userID, initiated.ConnectionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	return initiated.ConnectionID
}

func datePtr(d domain.Date) *domain.Date {
	return &d
}

func TestInitiateConnection_PersistsPendingConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.InitiateConnection(ctx, "alice", mock.ProviderName, connector.ConsentOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.ConsentStatusApproved {
		t.Fatalf("expected the connector-reported status approved, got %s", result.Status)
	}
	if !strings.HasPrefix(result.ConsentHandle, "mock-consent-") {
		t.Fatalf("unexpected consent handle %q", result.ConsentHandle)
	}

	conn, err := env.repo.GetConnection(ctx, result.ConnectionID, "alice")
	if err != nil {
		t.Fatalf("expected stored connection, got %v", err)
	}
	if conn.Status != domain.ConnectionStatusPending {
		t.Fatalf("expected pending connection, got %s", conn.Status)
	}
	if conn.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %s", conn.Currency)
	}
}

func TestInitiateConnection_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.InitiateConnection(ctx, "alice", "plaid", connector.ConsentOptions{}); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := env.svc.InitiateConnection(ctx, "alice", mock.ProviderName, connector.ConsentOptions{Currency: "RUPEE"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad currency, got %v", err)
	}
	list, _ := env.svc.GetConnections(ctx, "alice")
	if len(list) != 0 {
		t.Fatalf("expected no connection to be stored on failure, got %d", len(list))
	}
}

func TestConfirmConsent_ApprovedMockActivatesWithCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", mock.ProviderName, connector.ConsentOptions{})

	result, err := env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.ConnectionStatusActive {
		t.Fatalf("expected active, got %s", result.Status)
	}
	if len(result.Accounts) != 2 {
		t.Fatalf("expected the 2-account catalog, got %d", len(result.Accounts))
	}

	conn, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
	if conn.AccountID == nil || *conn.AccountID != result.Accounts[0].AccountID {
		t.Fatalf("expected first account to be selected, got %v", conn.AccountID)
	}
}

func TestConfirmConsent_KeepsSelectedAccountOnReconfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")

	if _, err := env.svc.SelectAccount(ctx, "alice", id, "mock-current-002"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if _, err := env.svc.ConfirmConsent(ctx, "alice", id); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	conn, _ := env.repo.GetConnection(ctx, id, "alice")
	if *conn.AccountID != "mock-current-002" {
		t.Fatalf("expected selected account to survive reconfirm, got %s", *conn.AccountID)
	}
}

func TestConfirmConsent_NonApprovedStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.ConsentStatus
		accounts []domain.BankAccount
		want     domain.ConnectionStatus
	}{
		{name: "pending", status: domain.ConsentStatusPending, want: domain.ConnectionStatusPending},
		{name: "rejected", status: domain.ConsentStatusRejected, want: domain.ConnectionStatusRejected},
		{name: "approved without accounts", status: domain.ConsentStatusApproved, want: domain.ConnectionStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.stub.status = tt.status
			env.stub.accounts = tt.accounts
			initiated, _ := env.svc.InitiateConnection(ctx, "alice", "stub", connector.ConsentOptions{})

			result, err := env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result.Status)
			}
			conn, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
			if conn.Status != tt.want {
				t.Fatalf("expected stored status %s, got %s", tt.want, conn.Status)
			}
		})
	}
}

func TestSelectAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")

	if _, err := env.svc.SelectAccount(ctx, "alice", id, "does-not-exist"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	result, err := env.svc.SelectAccount(ctx, "alice", id, "mock-current-002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AccountID != "mock-current-002" || result.Status != domain.ConnectionStatusActive {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Label == "" {
		t.Fatal("expected account label to be returned")
	}
}

func TestSelectAccount_RejectedConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stub.status = domain.ConsentStatusRejected
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", "stub", connector.ConsentOptions{})
	_, _ = env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)

	_, err := env.svc.SelectAccount(ctx, "alice", initiated.ConnectionID, "any")
	if !errors.Is(err, domain.ErrConsentRejected) {
		t.Fatalf("expected ErrConsentRejected, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected rejection to still match ErrNotActive, got %v", err)
	}
}

func TestSyncAndRefresh_RequireActiveConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", mock.ProviderName, connector.ConsentOptions{})

	if _, err := env.svc.SyncConnection(ctx, "alice", initiated.ConnectionID, nil, nil); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive from sync, got %v", err)
	}
	if _, err := env.svc.RefreshConnection(ctx, "alice", initiated.ConnectionID); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive from refresh, got %v", err)
	}
}

func TestOperations_ForeignUserGetsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")

	if _, err := env.svc.ConfirmConsent(ctx, "mallory", id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from confirm, got %v", err)
	}
	if _, err := env.svc.SyncConnection(ctx, "mallory", id, nil, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from sync, got %v", err)
	}
	if _, err := env.svc.GetSyncLogs(ctx, "mallory", id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from logs, got %v", err)
	}
	if err := env.svc.Disconnect(ctx, "mallory", id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from disconnect, got %v", err)
	}
}

func TestSyncConnection_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")
	from := datePtr(domain.NewDate(2026, time.January, 1))
	to := datePtr(domain.NewDate(2026, time.January, 3))

	first, err := env.svc.SyncConnection(ctx, "alice", id, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != domain.SyncStatusSuccess || first.RecordsFetched != 6 {
		t.Fatalf("expected 6 fetched successfully, got %+v", first)
	}
	if first.RecordsImported != 6 || first.DuplicatesSkipped != 0 {
		t.Fatalf("expected imported=6 skipped=0, got imported=%d skipped=%d", first.RecordsImported, first.DuplicatesSkipped)
	}

	second, err := env.svc.SyncConnection(ctx, "alice", id, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.RecordsImported != 0 || second.DuplicatesSkipped != 6 {
		t.Fatalf("expected imported=0 skipped=6, got imported=%d skipped=%d", second.RecordsImported, second.DuplicatesSkipped)
	}

	for _, e := range env.repo.Expenses("alice") {
		if e.Source != domain.ExpenseSourceBankSync {
			t.Fatalf("expected source bank_sync, got %s", e.Source)
		}
		if e.Amount.IsNegative() {
			t.Fatalf("expected non-negative amount, got %s", e.Amount)
		}
	}

	conn, _ := env.repo.GetConnection(ctx, id, "alice")
	if conn.SyncCursor == nil || *conn.SyncCursor != "2026-01-03" {
		t.Fatalf("expected cursor 2026-01-03, got %v", conn.SyncCursor)
	}
	if conn.LastSyncAt == nil || !conn.LastSyncAt.Equal(fixedNow) {
		t.Fatalf("expected last_sync_at %s, got %v", fixedNow, conn.LastSyncAt)
	}
}

func TestSyncConnection_RejectsInvertedRange(t *testing.T) {
	env := newTestEnv(t)
	id := env.activeConnection(t, "alice")

	_, err := env.svc.SyncConnection(context.Background(), "alice", id,
		datePtr(domain.NewDate(2026, time.February, 2)), datePtr(domain.NewDate(2026, time.February, 1)))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRefreshConnection_AdvancesCursorFromYesterdayToToday(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")

	yesterday := domain.DateOf(fixedNow).AddDays(-1)
	if _, err := env.svc.SyncConnection(ctx, "alice", id, datePtr(yesterday), datePtr(yesterday)); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	entry, err := env.svc.RefreshConnection(ctx, "alice", id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.SyncType != domain.SyncTypeRefresh || entry.Status != domain.SyncStatusSuccess {
		t.Fatalf("unexpected refresh log %+v", entry)
	}

	conn, _ := env.repo.GetConnection(ctx, id, "alice")
	if conn.SyncCursor == nil || *conn.SyncCursor != "2026-03-10" {
		t.Fatalf("expected cursor 2026-03-10, got %v", conn.SyncCursor)
	}
}

func TestSyncConnection_ProviderFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stub.status = domain.ConsentStatusApproved
	env.stub.accounts = []domain.BankAccount{{AccountID: "acc-1", Label: "Primary", Currency: "INR"}}
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", "stub", connector.ConsentOptions{})
	_, _ = env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)

	cursor := "2026-03-01"
	conn, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
	conn.SyncCursor = &cursor
	_ = env.repo.UpdateConnection(ctx, conn)

	long := strings.Repeat("x", 3000)
	env.stub.fetch = func(ctx context.Context) (*domain.SyncResult, error) {
		return nil, errors.New(long)
	}

	entry, err := env.svc.RefreshConnection(ctx, "alice", initiated.ConnectionID)
	if err != nil {
		t.Fatalf("expected provider failure to be absorbed, got %v", err)
	}
	if entry.Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed log, got %s", entry.Status)
	}
	if entry.ErrorMessage == nil || len(*entry.ErrorMessage) != domain.MaxSyncErrorLength {
		t.Fatalf("expected error truncated to %d chars", domain.MaxSyncErrorLength)
	}

	after, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
	if after.SyncCursor == nil || *after.SyncCursor != cursor {
		t.Fatalf("expected cursor to stay %s, got %v", cursor, after.SyncCursor)
	}
	if after.LastSyncAt != nil {
		t.Fatalf("expected last_sync_at untouched on failure, got %v", after.LastSyncAt)
	}

	logs, _ := env.svc.GetSyncLogs(ctx, "alice", initiated.ConnectionID)
	if len(logs) != 1 || logs[0].Status != domain.SyncStatusFailed {
		t.Fatalf("expected one failed log, got %+v", logs)
	}

	if len(env.publisher.events) != 1 || env.publisher.events[0].routingKey != domain.RoutingKeySyncFailed {
		t.Fatalf("expected one bank_sync.failed event, got %+v", env.publisher.events)
	}
}

func TestSyncConnection_NilCursorDoesNotRegress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.stub.status = domain.ConsentStatusApproved
	env.stub.accounts = []domain.BankAccount{{AccountID: "acc-1", Label: "Primary", Currency: "INR"}}
	env.stub.fetch = func(ctx context.Context) (*domain.SyncResult, error) {
		return &domain.SyncResult{Transactions: []domain.Transaction{}}, nil
	}
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", "stub", connector.ConsentOptions{})
	_, _ = env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)

	cursor := "2026-02-28"
	conn, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
	conn.SyncCursor = &cursor
	_ = env.repo.UpdateConnection(ctx, conn)

	entry, err := env.svc.RefreshConnection(ctx, "alice", initiated.ConnectionID)
	if err != nil || entry.Status != domain.SyncStatusSuccess {
		t.Fatalf("expected successful refresh, got entry=%+v err=%v", entry, err)
	}
	after, _ := env.repo.GetConnection(ctx, initiated.ConnectionID, "alice")
	if after.SyncCursor == nil || *after.SyncCursor != cursor {
		t.Fatalf("expected cursor to stay %s, got %v", cursor, after.SyncCursor)
	}
	if env.publisher.events[0].routingKey != domain.RoutingKeySyncCompleted {
		t.Fatalf("expected bank_sync.completed, got %s", env.publisher.events[0].routingKey)
	}
}

func TestSyncConnection_TimeoutIsRecordedAsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.svc.syncTimeout = 20 * time.Millisecond
	env.stub.status = domain.ConsentStatusApproved
	env.stub.accounts = []domain.BankAccount{{AccountID: "acc-1", Label: "Primary", Currency: "INR"}}
	env.stub.fetch = func(ctx context.Context) (*domain.SyncResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	initiated, _ := env.svc.InitiateConnection(ctx, "alice", "stub", connector.ConsentOptions{})
	_, _ = env.svc.ConfirmConsent(ctx, "alice", initiated.ConnectionID)

	entry, err := env.svc.SyncConnection(ctx, "alice", initiated.ConnectionID, nil, nil)
	if err != nil {
		t.Fatalf("expected timeout to be absorbed, got %v", err)
	}
	if entry.Status != domain.SyncStatusFailed || !strings.Contains(*entry.ErrorMessage, "deadline exceeded") {
		t.Fatalf("expected deadline failure, got %+v", entry)
	}
}

func TestSyncConnection_BusyLockReturnsSyncInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")

	release, err := env.svc.locker.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := env.svc.RefreshConnection(ctx, "alice", id); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	release()

	if _, err := env.svc.RefreshConnection(ctx, "alice", id); err != nil {
		t.Fatalf("expected refresh after release to succeed, got %v", err)
	}
}

func TestDisconnect_RemovesConnectionAndLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeConnection(t, "alice")
	if _, err := env.svc.RefreshConnection(ctx, "alice", id); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if err := env.svc.Disconnect(ctx, "alice", id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, _ := env.svc.GetConnections(ctx, "alice")
	if len(list) != 0 {
		t.Fatalf("expected no connections, got %d", len(list))
	}
	if _, err := env.svc.SyncConnection(ctx, "alice", id, nil, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after disconnect, got %v", err)
	}
	if logs, _ := env.repo.ListSyncLogs(ctx, id, MaxSyncLogs); len(logs) != 0 {
		t.Fatalf("expected logs to be removed, got %d", len(logs))
	}
}

func TestGetAvailableProviders(t *testing.T) {
	env := newTestEnv(t)
	got := env.svc.GetAvailableProviders()
	if len(got) != 2 || got[0] != "mock" || got[1] != "stub" {
		t.Fatalf("expected [mock stub], got %v", got)
	}
}

type rateLimiterStub struct {
	usage QuotaUsage
	err   error
	calls []domain.SyncType
	seen  []SyncQuota
}

func (r *rateLimiterStub) ConsumeSyncQuota(ctx context.Context, userID string, syncType domain.SyncType, quota SyncQuota) (QuotaUsage, error) {
	r.calls = append(r.calls, syncType)
	r.seen = append(r.seen, quota)
	return r.usage, r.err
}

func TestCheckSyncRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		limiter *rateLimiterStub
		wantErr bool
	}{
		{name: "allowed", limiter: &rateLimiterStub{usage: QuotaUsage{Allowed: true, Remaining: 2}}},
		{name: "last unit", limiter: &rateLimiterStub{usage: QuotaUsage{Allowed: true}}},
		{name: "exhausted", limiter: &rateLimiterStub{usage: QuotaUsage{RetryAfterSeconds: 40}}, wantErr: true},
		{name: "limiter unavailable", limiter: &rateLimiterStub{err: errors.New("redis down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewBankSyncService(store.NewMemoryStore(), connector.NewRegistry(), nil, config.Config{SyncRateLimitPerMinute: 5})
			svc.SetSyncRateLimiter(tt.limiter)

			err := svc.CheckSyncRateLimit(context.Background(), "alice", domain.SyncTypeFull)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var rateErr *RateLimitError
			if !errors.As(err, &rateErr) || !errors.Is(err, domain.ErrRateLimited) {
				t.Fatalf("expected RateLimitError, got %v", err)
			}
			if rateErr.RetryAfterSeconds != 40 {
				t.Fatalf("expected retry after 40s, got %d", rateErr.RetryAfterSeconds)
			}
		})
	}
}

func TestCheckSyncRateLimit_QuotaPerSyncType(t *testing.T) {
	limiter := &rateLimiterStub{usage: QuotaUsage{Allowed: true}}
	svc := NewBankSyncService(store.NewMemoryStore(), connector.NewRegistry(), nil, config.Config{SyncRateLimitPerMinute: 5, RefreshRateLimitPerMinute: 2})
	svc.SetSyncRateLimiter(limiter)
	ctx := context.Background()

	for _, syncType := range []domain.SyncType{domain.SyncTypeFull, domain.SyncTypeRefresh} {
		if err := svc.CheckSyncRateLimit(ctx, "alice", syncType); err != nil {
			t.Fatalf("%s: unexpected error: %v", syncType, err)
		}
	}
	if len(limiter.calls) != 2 || limiter.calls[0] != domain.SyncTypeFull || limiter.calls[1] != domain.SyncTypeRefresh {
		t.Fatalf("expected one call per sync type, got %v", limiter.calls)
	}
	if limiter.seen[0].Limit != 5 || limiter.seen[1].Limit != 2 {
		t.Fatalf("expected limits 5 and 2, got %+v", limiter.seen)
	}

	disabled := NewBankSyncService(store.NewMemoryStore(), connector.NewRegistry(), nil, config.Config{SyncRateLimitPerMinute: 5})
	disabled.SetSyncRateLimiter(limiter)
	if err := disabled.CheckSyncRateLimit(ctx, "alice", domain.SyncTypeRefresh); err != nil {
		t.Fatalf("expected a zero refresh quota to disable limiting, got %v", err)
	}
	if len(limiter.calls) != 2 {
		t.Fatalf("expected the limiter to be skipped, got %d calls", len(limiter.calls))
	}
}
