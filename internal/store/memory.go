package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
)

type memoryConnection struct {
	conn domain.BankConnection
	seq  int64
}

type memorySyncLog struct {
	entry domain.SyncLog
	seq   int64
}

// MemoryStore is an in-process Store used with STORE_DRIVER=memory and in tests.
// Reads return copies, so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	seq         int64
	connections map[uuid.UUID]*memoryConnection
	logs        []memorySyncLog
	expenses    []domain.Expense
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{connections: make(map[uuid.UUID]*memoryConnection)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

func cloneConnection(c domain.BankConnection) domain.BankConnection {
	out := c
	out.AccountID = cloneString(c.AccountID)
	out.AccountLabel = cloneString(c.AccountLabel)
	out.SyncCursor = cloneString(c.SyncCursor)
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		out.LastSyncAt = &t
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (s *MemoryStore) CreateConnection(ctx context.Context, conn *domain.BankConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = &memoryConnection{conn: cloneConnection(*conn), seq: s.nextSeq()}
	return nil
}

func (s *MemoryStore) GetConnection(ctx context.Context, id uuid.UUID, userID string) (*domain.BankConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.connections[id]
	if !ok || stored.conn.UserID != userID {
		return nil, ErrConnectionNotFound
	}
	conn := cloneConnection(stored.conn)
	return &conn, nil
}

func (s *MemoryStore) UpdateConnection(ctx context.Context, conn *domain.BankConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.connections[conn.ID]
	if !ok || stored.conn.UserID != conn.UserID {
		return ErrConnectionNotFound
	}
	conn.UpdatedAt = time.Now().UTC()
	updated := cloneConnection(*conn)
	updated.CreatedAt = stored.conn.CreatedAt
	updated.Provider = stored.conn.Provider
	updated.ConsentHandle = stored.conn.ConsentHandle
	stored.conn = updated
	return nil
}

func (s *MemoryStore) DeleteConnection(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.connections[id]
	if !ok || stored.conn.UserID != userID {
		return false, nil
	}
	delete(s.connections, id)

	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.entry.ConnectionID != id {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return true, nil
}

func (s *MemoryStore) ListConnectionsByUser(ctx context.Context, userID string) ([]domain.BankConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*memoryConnection, 0)
	for _, stored := range s.connections {
		if stored.conn.UserID == userID {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.conn.CreatedAt.Equal(b.conn.CreatedAt) {
			return a.conn.CreatedAt.After(b.conn.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.BankConnection, 0, len(matched))
	for _, stored := range matched {
		out = append(out, cloneConnection(stored.conn))
	}
	return out, nil
}

func (s *MemoryStore) ListActiveConnections(ctx context.Context) ([]domain.BankConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*memoryConnection, 0)
	for _, stored := range s.connections {
		if stored.conn.Status == domain.ConnectionStatusActive && stored.conn.AccountID != nil {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].conn.LastSyncAt, matched[j].conn.LastSyncAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]domain.BankConnection, 0, len(matched))
	for _, stored := range matched {
		out = append(out, cloneConnection(stored.conn))
	}
	return out, nil
}

func (s *MemoryStore) CreateSyncLog(ctx context.Context, entry *domain.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[entry.ConnectionID]; !ok {
		return ErrConnectionNotFound
	}
	copied := *entry
	copied.ErrorMessage = cloneString(entry.ErrorMessage)
	s.logs = append(s.logs, memorySyncLog{entry: copied, seq: s.nextSeq()})
	return nil
}

func (s *MemoryStore) ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]domain.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]memorySyncLog, 0)
	for _, l := range s.logs {
		if l.entry.ConnectionID == connectionID {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]domain.SyncLog, 0, len(matched))
	for _, l := range matched {
		entry := l.entry
		entry.ErrorMessage = cloneString(l.entry.ErrorMessage)
		out = append(out, entry)
	}
	return out, nil
}

func (s *MemoryStore) ExpenseExistsByDateAndAmount(ctx context.Context, userID string, date domain.Date, amount decimal.Decimal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := amount.Abs()
	for _, e := range s.expenses {
		if e.UserID == userID && e.SpentAt.Equal(date) && e.Amount.Abs().Equal(want) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *expense
	copied.Category = cloneString(expense.Category)
	s.expenses = append(s.expenses, copied)
	return nil
}

func (s *MemoryStore) MonthlyCategoryTotals(ctx context.Context, userID string, from, to domain.Date) ([]domain.MonthlyCategoryTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ month, category string }
	sums := make(map[key]decimal.Decimal)
	for _, e := range s.expenses {
		if e.UserID != userID || e.ExpenseType == domain.ExpenseTypeIncome {
			continue
		}
		if e.SpentAt.Before(from) || !e.SpentAt.Before(to) {
			continue
		}
		category := domain.UncategorizedCategory
		if e.Category != nil && strings.TrimSpace(*e.Category) != "" {
			category = strings.TrimSpace(*e.Category)
		}
		k := key{month: e.SpentAt.Format("2006-01"), category: category}
		sums[k] = sums[k].Add(e.Amount)
	}

	out := make([]domain.MonthlyCategoryTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, domain.MonthlyCategoryTotal{Month: k.month, Category: k.category, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// Expenses returns a snapshot of every ledger row of userID.
func (s *MemoryStore) Expenses(userID string) []domain.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Expense, 0)
	for _, e := range s.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
