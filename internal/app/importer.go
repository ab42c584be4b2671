/**
 * @description
 * The importer turns normalized provider transactions into bank-sourced expense rows.
 * Amounts are stored as absolute values rounded to two decimal places so the
 * date-and-amount duplicate check sees the same value that was written.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/internal/store"
)

const maxNotesLength = 500

// Importer writes normalized bank transactions into the expense ledger.
//
// A transaction is treated as already imported when the user has a ledger row
// with the same date and absolute amount, rounded to two decimal places. Provider transaction ids are ignored
// because they are not stable across full and incremental fetches, so two
// genuine same-day, same-amount transactions collapse into one.
type Importer struct {
	expenses store.ExpenseRepository
	now      func() time.Time
}

func NewImporter(expenses store.ExpenseRepository) *Importer {
	return &Importer{expenses: expenses, now: time.Now}
}

// Import returns how many rows were inserted and how many were skipped as duplicates.
// A repository error stops the import; rows inserted before it are skipped as
// duplicates by the next attempt.
func (i *Importer) Import(ctx context.Context, userID, fallbackCurrency string, transactions []domain.Transaction) (imported, skipped int, err error) {
	for _, txn := range transactions {
		amount := txn.Amount.Abs().Round(2)

		exists, err := i.expenses.ExpenseExistsByDateAndAmount(ctx, userID, txn.Date, amount)
		if err != nil {
			return imported, skipped, fmt.Errorf("duplicate check for %s on %s: %w", txn.TxnID, txn.Date, err)
		}
		if exists {
			skipped++
			continue
		}

		currency := txn.Currency
		if currency == "" {
			currency = fallbackCurrency
		}
		expense := &domain.Expense{
			ID:          uuid.New(),
			UserID:      userID,
			Amount:      amount,
			Currency:    currency,
			ExpenseType: txn.ExpenseType,
			Notes:       truncateRunes(txn.Description, maxNotesLength),
			SpentAt:     txn.Date,
			Source:      domain.ExpenseSourceBankSync,
			CreatedAt:   i.now().UTC(),
		}
		if err := i.expenses.CreateExpense(ctx, expense); err != nil {
			return imported, skipped, fmt.Errorf("insert expense for %s: %w", txn.TxnID, err)
		}
		imported++
	}
	return imported, skipped, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
