/**
 * @description
 * This file defines the normalized data model every bank connector produces:
 * accounts discovered under a consent, transactions, and the batch result of a
 * fetch or refresh call.
 *
 * @notes
 * - Amounts are non-negative decimals; the direction lives in ExpenseType.
 * - Metadata is provider-specific passthrough and is never interpreted here.
 */
package domain

import "github.com/shopspring/decimal"

// AccountType classifies a provider-reported account.
type AccountType string

const (
	AccountTypeSavings AccountType = "savings"
	AccountTypeCurrent AccountType = "current"
	AccountTypeCredit  AccountType = "credit"
)

// ExpenseType carries the direction of a transaction.
type ExpenseType string

const (
	ExpenseTypeExpense ExpenseType = "EXPENSE"
	ExpenseTypeIncome  ExpenseType = "INCOME"
)

// ConsentStatus is the normalized state of a provider consent.
type ConsentStatus string

const (
	ConsentStatusPending  ConsentStatus = "pending"
	ConsentStatusApproved ConsentStatus = "approved"
	ConsentStatusRejected ConsentStatus = "rejected"
)

// BankAccount is a single account discovered under a consent.
type BankAccount struct {
	AccountID string         `json:"account_id"`
	Label     string         `json:"label"`
	Type      AccountType    `json:"type"`
	Currency  string         `json:"currency"`
	Metadata  map[string]any `json:"-"`
}

// Transaction is a connector-normalized bank transaction.
type Transaction struct {
	TxnID        string          `json:"txn_id"`
	Date         Date            `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Currency     string          `json:"currency"`
	ExpenseType  ExpenseType     `json:"expense_type"`
	CategoryHint *string         `json:"category_hint,omitempty"`
	Metadata     map[string]any  `json:"-"`
}

// SyncResult is the batch returned by a fetch or refresh call.
type SyncResult struct {
	Transactions []Transaction
	// Cursor marks fetch progress. Nil means "no further knowledge", not "no progress".
	Cursor *string
	// HasMore is part of the contract for future pagination; current connectors return false.
	HasMore bool
}
