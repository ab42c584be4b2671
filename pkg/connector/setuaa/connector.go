/**
 * @description
 * The Setu connector adapts the gateway client to the bank sync contract: consent
 * creation and status mapping, account discovery through a data session and the
 * normalization of FI payload rows into transactions.
 *
 * @notes
 * - Amounts are absolute and rounded to two decimal places.
 * - Rows without a transaction id get a UUIDv5 minted from date, amount and narration.
 */

package setuaa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/pkg/connector"
)

// ProviderName is the registry key of the Setu AA connector.
const ProviderName = "setu_aa"

// DefaultRedirectURL is used when neither the request nor the config names one.
const DefaultRedirectURL = "https://finmind.app/bank-sync/callback"

const (
	currency             = "INR"
	maxDescriptionLength = 500
	timestampLayout      = "2006-01-02T15:04:05.000Z"
)

// historyStart is the earliest date a consent or account discovery session covers.
var historyStart = domain.NewDate(2020, time.January, 1)

// txnNamespace scopes the name-based ids minted for rows that carry no provider id.
var txnNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://setu.co/account-aggregator/txn"))

// Config holds the gateway credentials and defaults.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Connector talks to the Setu AA gateway.
type Connector struct {
	cfg    Config
	client *Client
	now    func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithClock replaces the wall clock used for consent timestamps and refresh windows.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		c.now = now
	}
}

// New creates a Setu AA connector. Missing credentials are reported per call, so a
// connector can be registered even when the service runs without them.
func New(cfg Config, opts ...Option) *Connector {
	c := &Connector{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ connector.Connector = (*Connector)(nil)

func (c *Connector) ProviderName() string { return ProviderName }

func (c *Connector) ensureConfigured() error {
	if strings.TrimSpace(c.cfg.ClientID) == "" || strings.TrimSpace(c.cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: set SETU_CLIENT_ID and SETU_CLIENT_SECRET", domain.ErrConfiguration)
	}
	return nil
}

// CreateConsent registers a consent request and returns the gateway's approval URL.
func (c *Connector) CreateConsent(ctx context.Context, userID string, opts connector.ConsentOptions) (*connector.ConsentResult, error) {
	if err := c.ensureConfigured(); err != nil {
		return nil, err
	}
	mobile := strings.TrimSpace(opts.Mobile)
	if mobile == "" {
		return nil, fmt.Errorf("%w: mobile number required for Setu AA consent", domain.ErrInvalidArgument)
	}

	redirectURL := firstNonEmpty(opts.RedirectURL, c.cfg.RedirectURL, DefaultRedirectURL)
	now := c.now().UTC().Format(timestampLayout)

	req := ConsentRequest{
		Detail: ConsentDetail{
			ConsentStart:  now,
			ConsentExpiry: "2099-12-31T23:59:59.999Z",
			ConsentMode:   "STORE",
			FetchType:     "PERIODIC",
			ConsentTypes:  []string{"TRANSACTIONS"},
			FITypes:       []string{"DEPOSIT"},
			DataConsumer:  IDRef{ID: c.cfg.ClientID},
			Customer:      IDRef{ID: mobile + "@onemoney"},
			Purpose: ConsentPurpose{
				Code:     "101",
				RefURI:   "https://api.rebit.org.in/aa/purpose/101.xml",
				Text:     "Wealth management service",
				Category: map[string]string{"type": "string"},
			},
			FIDataRange: DateTimeRange{
				From: historyStart.Format(timestampLayout),
				To:   now,
			},
			DataLife:  UnitValue{Unit: "YEAR", Value: 5},
			Frequency: UnitValue{Unit: "DAY", Value: 1},
		},
		RedirectURL: redirectURL,
	}

	resp, err := c.client.CreateConsent(ctx, req)
	if err != nil {
		return nil, err
	}
	handle := resp.Handle()
	if handle == "" {
		return nil, fmt.Errorf("%w: setu consent response carried no id", domain.ErrProviderFailure)
	}

	log.Printf("level=info component=setu_connector msg=\"consent created\" user_id=%s consent_handle=%s", userID, handle)

	result := &connector.ConsentResult{
		ConsentHandle: handle,
		Status:        domain.ConsentStatusPending,
	}
	if redirect := resp.Redirect(); redirect != "" {
		result.RedirectURL = &redirect
	}
	return result, nil
}

func (c *Connector) CheckConsentStatus(ctx context.Context, consentHandle string) (domain.ConsentStatus, error) {
	if err := c.ensureConfigured(); err != nil {
		return "", err
	}
	resp, err := c.client.GetConsent(ctx, consentHandle)
	if err != nil {
		return "", err
	}
	return MapConsentStatus(resp.Status), nil
}

// MapConsentStatus normalizes a gateway consent state. Anything unrecognized is pending.
func MapConsentStatus(raw string) domain.ConsentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACTIVE", "APPROVED", "READY":
		return domain.ConsentStatusApproved
	case "REJECTED", "REVOKED", "EXPIRED":
		return domain.ConsentStatusRejected
	default:
		return domain.ConsentStatusPending
	}
}

// FetchAccounts opens a data session over the full consent window and reads the
// accounts linked to it.
func (c *Connector) FetchAccounts(ctx context.Context, consentHandle string) ([]domain.BankAccount, error) {
	if err := c.ensureConfigured(); err != nil {
		return nil, err
	}
	sessionID, err := c.createSession(ctx, consentHandle, historyStart, domain.DateOf(c.now()))
	if err != nil {
		return nil, err
	}
	session, err := c.client.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.BankAccount, 0, len(session.AccountList()))
	for _, raw := range session.AccountList() {
		id := firstNonEmpty(stringField(raw, "linkRefNumber"), stringField(raw, "id"))
		if id == "" {
			continue
		}
		accountType := domain.AccountTypeCurrent
		if strings.Contains(strings.ToLower(firstNonEmpty(stringField(raw, "FIType"), "DEPOSIT")), "saving") {
			accountType = domain.AccountTypeSavings
		}
		accounts = append(accounts, domain.BankAccount{
			AccountID: id,
			Label:     firstNonEmpty(stringField(raw, "maskedAccNumber"), id),
			Type:      accountType,
			Currency:  currency,
			Metadata:  raw,
		})
	}
	return accounts, nil
}

func (c *Connector) FetchTransactions(ctx context.Context, consentHandle, accountID string, from, to domain.Date) (*domain.SyncResult, error) {
	if err := c.ensureConfigured(); err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from date %s is after to date %s", domain.ErrInvalidArgument, from, to)
	}

	sessionID, err := c.createSession(ctx, consentHandle, from, to)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.GetSessionData(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	txns, err := ParseTransactions(payload, accountID)
	if err != nil {
		return nil, err
	}

	cursor := to.String()
	return &domain.SyncResult{Transactions: txns, Cursor: &cursor}, nil
}

// RefreshTransactions fetches from the day after the cursor through today. Without a
// cursor it starts at the first day of the current month.
func (c *Connector) RefreshTransactions(ctx context.Context, consentHandle, accountID string, cursor *string) (*domain.SyncResult, error) {
	if err := c.ensureConfigured(); err != nil {
		return nil, err
	}
	today := domain.DateOf(c.now())

	from := domain.NewDate(today.Year(), today.Month(), 1)
	if cursor != nil && *cursor != "" {
		last, err := domain.ParseDate(*cursor)
		if err != nil {
			return nil, fmt.Errorf("setu cursor: %w", err)
		}
		from = last.AddDays(1)
	}
	if from.After(today) {
		return &domain.SyncResult{Transactions: []domain.Transaction{}, Cursor: cursor}, nil
	}
	return c.FetchTransactions(ctx, consentHandle, accountID, from, today)
}

func (c *Connector) createSession(ctx context.Context, consentHandle string, from, to domain.Date) (string, error) {
	resp, err := c.client.CreateSession(ctx, SessionRequest{
		ConsentID: consentHandle,
		DataRange: DateTimeRange{
			From: from.String() + "T00:00:00.000Z",
			To:   to.String() + "T23:59:59.999Z",
		},
		Format: "json",
	})
	if err != nil {
		return "", err
	}
	if resp.Session() == "" {
		return "", fmt.Errorf("%w: setu session response carried no id", domain.ErrProviderFailure)
	}
	return resp.Session(), nil
}

// ParseTransactions extracts the rows of accountID from an FI data payload. Both the
// current (`data`) and legacy (`Payload`) envelopes are accepted, and blocks that name a
// different linkRefNumber are skipped. Rows without a usable date, amount or narration
// are dropped.
func ParseTransactions(payload json.RawMessage, accountID string) ([]domain.Transaction, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: undecodable FI payload: %v", domain.ErrProviderFailure, err)
	}

	blocks := root["data"]
	if blocks == nil {
		blocks = root["Payload"]
	}

	txns := []domain.Transaction{}
	for _, block := range asObjects(blocks) {
		if !belongsTo(block, accountID) {
			continue
		}
		entries := asObjects(block["data"])
		if block["data"] == nil {
			entries = []map[string]any{block}
		}
		for _, entry := range entries {
			if !belongsTo(entry, accountID) {
				continue
			}
			for _, row := range transactionRows(entry, 0) {
				if txn, ok := parseRow(row); ok {
					txns = append(txns, txn)
				}
			}
		}
	}
	return txns, nil
}

// transactionRows finds the transaction list inside an account entry. Entries nest it as
// Transactions, transactions.transaction, or below account/data wrappers.
func transactionRows(entry map[string]any, depth int) []map[string]any {
	if depth > 3 || entry == nil {
		return nil
	}
	if v, ok := entry["Transactions"]; ok {
		return unwrapTransactionList(v)
	}
	if v, ok := entry["transactions"]; ok {
		return unwrapTransactionList(v)
	}
	for _, key := range []string{"account", "Account", "data"} {
		if nested, ok := entry[key].(map[string]any); ok {
			if rows := transactionRows(nested, depth+1); len(rows) > 0 {
				return rows
			}
		}
	}
	return nil
}

// belongsTo reports whether a block is unlabelled or labelled with accountID.
func belongsTo(block map[string]any, accountID string) bool {
	ref := stringField(block, "linkRefNumber")
	return ref == "" || accountID == "" || ref == accountID
}

func unwrapTransactionList(v any) []map[string]any {
	if m, ok := v.(map[string]any); ok {
		return asObjects(m["transaction"])
	}
	return asObjects(v)
}

func parseRow(row map[string]any) (domain.Transaction, bool) {
	amount, ok := decimalField(row, "amount")
	if !ok {
		return domain.Transaction{}, false
	}
	amount = amount.Abs().Round(2)

	narration := firstNonEmpty(stringField(row, "narration"), stringField(row, "reference"))
	if narration == "" || amount.IsZero() {
		return domain.Transaction{}, false
	}

	rawDate := firstNonEmpty(stringField(row, "transactionTimestamp"), stringField(row, "valueDate"))
	if len(rawDate) < len(domain.DateLayout) {
		return domain.Transaction{}, false
	}
	date, err := domain.ParseDate(rawDate[:len(domain.DateLayout)])
	if err != nil {
		return domain.Transaction{}, false
	}

	expenseType := domain.ExpenseTypeExpense
	if strings.EqualFold(stringField(row, "type"), "CREDIT") {
		expenseType = domain.ExpenseTypeIncome
	}

	txnID := firstNonEmpty(stringField(row, "txnId"), stringField(row, "id"))
	if txnID == "" {
		name := date.String() + "|" + amount.String() + "|" + narration
		txnID = uuid.NewSHA1(txnNamespace, []byte(name)).String()
	}

	return domain.Transaction{
		TxnID:       txnID,
		Date:        date,
		Amount:      amount,
		Description: truncateRunes(narration, maxDescriptionLength),
		Currency:    currency,
		ExpenseType: expenseType,
		Metadata:    row,
	}, true
}

func asObjects(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return t
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return ""
	}
}

func decimalField(m map[string]any, key string) (decimal.Decimal, bool) {
	raw := stringField(m, key)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
