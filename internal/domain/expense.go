package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseSourceBankSync marks ledger rows created by the bank import pipeline.
const ExpenseSourceBankSync = "bank_sync"

// UncategorizedCategory names ledger rows without a category in budget aggregates.
const UncategorizedCategory = "uncategorized"

// Expense is a ledger row owned by the expense-tracking collaborator.
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ExpenseType ExpenseType     `json:"expense_type"`
	Category    *string         `json:"category"`
	Notes       string          `json:"notes"`
	SpentAt     Date            `json:"spent_at"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MonthlyCategoryTotal is the non-income spend of one category in one month.
type MonthlyCategoryTotal struct {
	Month    string // YYYY-MM
	Category string
	Total    decimal.Decimal
}
