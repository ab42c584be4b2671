package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/internal/store"
)

type failingExpenseRepo struct {
	store.ExpenseRepository
	failAfter int
	created   int
}

func (r *failingExpenseRepo) ExpenseExistsByDateAndAmount(ctx context.Context, userID string, date domain.Date, amount decimal.Decimal) (bool, error) {
	return false, nil
}

func (r *failingExpenseRepo) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	if r.created >= r.failAfter {
		return errors.New("insert failed")
	}
	r.created++
	return nil
}

func TestImporter_NormalizesRows(t *testing.T) {
	repo := store.NewMemoryStore()
	importer := NewImporter(repo)
	day := domain.NewDate(2026, time.February, 14)

	txns := []domain.Transaction{
		{TxnID: "a", Date: day, Amount: decimal.RequireFromString("-250.00"), Description: strings.Repeat("é", 600), ExpenseType: domain.ExpenseTypeExpense},
		{TxnID: "b", Date: day, Amount: decimal.RequireFromString("9000"), Description: "Salary", Currency: "USD", ExpenseType: domain.ExpenseTypeIncome},
	}

	imported, skipped, err := importer.Import(context.Background(), "alice", "INR", txns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imported != 2 || skipped != 0 {
		t.Fatalf("expected imported=2 skipped=0, got imported=%d skipped=%d", imported, skipped)
	}

	rows := repo.Expenses("alice")
	if !rows[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected absolute amount 250, got %s", rows[0].Amount)
	}
	if rows[0].Currency != "INR" || rows[1].Currency != "USD" {
		t.Fatalf("expected fallback INR and explicit USD, got %s and %s", rows[0].Currency, rows[1].Currency)
	}
	if n := len([]rune(rows[0].Notes)); n != maxNotesLength {
		t.Fatalf("expected notes truncated to %d runes, got %d", maxNotesLength, n)
	}
	if rows[1].ExpenseType != domain.ExpenseTypeIncome {
		t.Fatalf("expected expense type to be copied, got %s", rows[1].ExpenseType)
	}
	if rows[0].Category != nil {
		t.Fatalf("expected no category on imported rows, got %v", *rows[0].Category)
	}
}

func TestImporter_DuplicateKeyIgnoresTxnID(t *testing.T) {
	repo := store.NewMemoryStore()
	importer := NewImporter(repo)
	day := domain.NewDate(2026, time.February, 14)

	first := []domain.Transaction{{TxnID: "provider-1", Date: day, Amount: decimal.NewFromInt(120), Description: "Coffee"}}
	second := []domain.Transaction{{TxnID: "provider-2", Date: day, Amount: decimal.NewFromInt(-120), Description: "Different text"}}

	if _, _, err := importer.Import(context.Background(), "alice", "INR", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imported, skipped, err := importer.Import(context.Background(), "alice", "INR", second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imported != 0 || skipped != 1 {
		t.Fatalf("expected same date and amount to be skipped, got imported=%d skipped=%d", imported, skipped)
	}
}

func TestImporter_RoundsAmountBeforeDuplicateCheck(t *testing.T) {
	repo := store.NewMemoryStore()
	importer := NewImporter(repo)
	day := domain.NewDate(2026, time.February, 14)
	txns := []domain.Transaction{{TxnID: "p", Date: day, Amount: decimal.RequireFromString("-250.005"), Description: "Fuel"}}

	if _, _, err := importer.Import(context.Background(), "alice", "INR", txns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imported, skipped, err := importer.Import(context.Background(), "alice", "INR", txns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imported != 0 || skipped != 1 {
		t.Fatalf("expected the re-import to be skipped, got imported=%d skipped=%d", imported, skipped)
	}

	rows := repo.Expenses("alice")
	if len(rows) != 1 {
		t.Fatalf("expected 1 stored row, got %d", len(rows))
	}
	if !rows[0].Amount.Equal(decimal.RequireFromString("250.01")) {
		t.Fatalf("expected amount rounded to 250.01, got %s", rows[0].Amount)
	}
}

func TestImporter_StopsOnRepositoryError(t *testing.T) {
	repo := &failingExpenseRepo{failAfter: 1}
	importer := NewImporter(repo)
	day := domain.NewDate(2026, time.February, 14)
	txns := []domain.Transaction{
		{TxnID: "a", Date: day, Amount: decimal.NewFromInt(1)},
		{TxnID: "b", Date: day, Amount: decimal.NewFromInt(2)},
		{TxnID: "c", Date: day, Amount: decimal.NewFromInt(3)},
	}

	imported, _, err := importer.Import(context.Background(), "alice", "INR", txns)
	if err == nil {
		t.Fatal("expected repository error to be returned")
	}
	if imported != 1 {
		t.Fatalf("expected 1 row imported before the failure, got %d", imported)
	}
}
