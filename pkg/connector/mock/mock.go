/**
 * @description
 * Network-free connector for local development and CI.
 *
 * Transactions are a pure function of the requested date range, so fetching the same
 * range twice yields identical ids and amounts. The template table mimics the mix of
 * UPI, NEFT and IMPS traffic seen on Indian retail accounts.
 */
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/pkg/connector"
)

// ProviderName is the registry key of the mock connector.
const ProviderName = "mock"

// refreshLookbackDays is the window used by a refresh with no stored cursor.
const refreshLookbackDays = 30

const currency = "INR"

type template struct {
	description string
	amount      decimal.Decimal
	expenseType domain.ExpenseType
	category    string
}

func tmpl(description string, amount int64, expenseType domain.ExpenseType, category string) template {
	return template{
		description: description,
		amount:      decimal.NewFromInt(amount),
		expenseType: expenseType,
		category:    category,
	}
}

var templates = []template{
	tmpl("Swiggy Order", 349, domain.ExpenseTypeExpense, "Food & Dining"),
	tmpl("Zomato Payment", 425, domain.ExpenseTypeExpense, "Food & Dining"),
	tmpl("Amazon.in Purchase", 1299, domain.ExpenseTypeExpense, "Shopping"),
	tmpl("Flipkart Order", 899, domain.ExpenseTypeExpense, "Shopping"),
	tmpl("Jio Recharge", 299, domain.ExpenseTypeExpense, "Utilities"),
	tmpl("Airtel Broadband", 999, domain.ExpenseTypeExpense, "Utilities"),
	tmpl("Uber India", 187, domain.ExpenseTypeExpense, "Transport"),
	tmpl("Ola Ride", 215, domain.ExpenseTypeExpense, "Transport"),
	tmpl("Netflix Subscription", 649, domain.ExpenseTypeExpense, "Entertainment"),
	tmpl("Hotstar Premium", 299, domain.ExpenseTypeExpense, "Entertainment"),
	tmpl("BigBasket Groceries", 1875, domain.ExpenseTypeExpense, "Groceries"),
	tmpl("DMart Purchase", 2340, domain.ExpenseTypeExpense, "Groceries"),
	tmpl("NEFT-Salary Credit", 45000, domain.ExpenseTypeIncome, ""),
	tmpl("UPI-Freelance Payment", 15000, domain.ExpenseTypeIncome, ""),
	tmpl("IMPS-Rent Payment", 12000, domain.ExpenseTypeExpense, "Housing"),
	tmpl("PhonePe Transfer", 500, domain.ExpenseTypeExpense, ""),
	tmpl("Google Pay UPI", 750, domain.ExpenseTypeExpense, ""),
	tmpl("Electricity Bill BBPS", 1450, domain.ExpenseTypeExpense, "Utilities"),
	tmpl("LIC Premium", 3500, domain.ExpenseTypeExpense, "Insurance"),
	tmpl("SIP Mutual Fund", 5000, domain.ExpenseTypeExpense, "Investment"),
}

var accounts = []domain.BankAccount{
	{
		AccountID: "mock-savings-001",
		Label:     "HDFC Savings ****4321",
		Type:      domain.AccountTypeSavings,
		Currency:  currency,
	},
	{
		AccountID: "mock-current-002",
		Label:     "ICICI Current ****8765",
		Type:      domain.AccountTypeCurrent,
		Currency:  currency,
	},
}

// Connector returns synthetic bank data.
type Connector struct {
	now func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithClock replaces the wall clock used to resolve "today" on refresh.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		c.now = now
	}
}

// New creates a mock connector.
func New(opts ...Option) *Connector {
	c := &Connector{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ connector.Connector = (*Connector)(nil)

func (c *Connector) ProviderName() string { return ProviderName }

// CreateConsent approves synchronously; there is no redirect leg.
func (c *Connector) CreateConsent(ctx context.Context, userID string, opts connector.ConsentOptions) (*connector.ConsentResult, error) {
	handle := "mock-consent-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return &connector.ConsentResult{
		ConsentHandle: handle,
		Status:        domain.ConsentStatusApproved,
	}, nil
}

func (c *Connector) CheckConsentStatus(ctx context.Context, consentHandle string) (domain.ConsentStatus, error) {
	return domain.ConsentStatusApproved, nil
}

func (c *Connector) FetchAccounts(ctx context.Context, consentHandle string) ([]domain.BankAccount, error) {
	out := make([]domain.BankAccount, len(accounts))
	copy(out, accounts)
	return out, nil
}

func (c *Connector) FetchTransactions(ctx context.Context, consentHandle, accountID string, from, to domain.Date) (*domain.SyncResult, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from date %s is after to date %s", domain.ErrInvalidArgument, from, to)
	}
	cursor := to.String()
	return &domain.SyncResult{
		Transactions: generate(from, to),
		Cursor:       &cursor,
	}, nil
}

// RefreshTransactions fetches (cursor+1 .. today], or the trailing 30 days without a cursor.
// A cursor already at or past today yields an empty batch and the same cursor.
func (c *Connector) RefreshTransactions(ctx context.Context, consentHandle, accountID string, cursor *string) (*domain.SyncResult, error) {
	today := domain.DateOf(c.now())

	from := today.AddDays(-refreshLookbackDays)
	if cursor != nil && *cursor != "" {
		last, err := domain.ParseDate(*cursor)
		if err != nil {
			return nil, fmt.Errorf("mock cursor: %w", err)
		}
		from = last.AddDays(1)
	}

	if from.After(today) {
		return &domain.SyncResult{Transactions: []domain.Transaction{}, Cursor: cursor}, nil
	}

	next := today.String()
	return &domain.SyncResult{
		Transactions: generate(from, today),
		Cursor:       &next,
	}, nil
}

// generate emits ordinal%3+1 transactions per day. The slot index runs across the
// whole range and drives both the template pick and the amount jitter.
func generate(from, to domain.Date) []domain.Transaction {
	txns := []domain.Transaction{}
	idx := 0
	for day := from; !day.After(to); day = day.AddDays(1) {
		ordinal := day.Ordinal()
		count := ordinal%3 + 1
		for i := 0; i < count; i++ {
			t := templates[idx%len(templates)]
			jitter := int64((idx*7 + ordinal) % 20)
			amount := t.amount.Mul(decimal.NewFromInt(90 + jitter)).Div(decimal.NewFromInt(100)).Round(2)

			var hint *string
			if t.category != "" {
				category := t.category
				hint = &category
			}

			txns = append(txns, domain.Transaction{
				TxnID:        fmt.Sprintf("mock-%s-%04d", day, idx),
				Date:         day,
				Amount:       amount,
				Description:  fmt.Sprintf("%s - %s", t.description, day.Format("02 Jan")),
				Currency:     currency,
				ExpenseType:  t.expenseType,
				CategoryHint: hint,
			})
			idx++
		}
	}
	return txns
}
