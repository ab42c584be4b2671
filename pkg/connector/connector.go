/**
 * @description
 * This package defines the capability contract every bank data provider implements,
 * and the registry that maps a provider name to a connector factory.
 *
 * Key features:
 * - A closed `Connector` interface covering the three-legged flow:
 *   consent -> account discovery -> transaction fetch.
 * - An explicit `Registry` object built once at startup and injected into callers.
 *
 * @dependencies
 * - The service's internal domain package for the normalized account/transaction model.
 */
package connector

import (
	"context"

	"github.com/finmind/banksync-service/internal/domain"
)

// ConsentOptions carries the optional, provider-specific inputs of a consent request.
type ConsentOptions struct {
	// Mobile is the contact identifier some aggregators require.
	Mobile string
	// RedirectURL overrides the provider's default post-consent redirect.
	RedirectURL string
	// Currency is the fallback currency the caller wants for the connection.
	Currency string
}

// ConsentResult is returned when a consent flow starts.
type ConsentResult struct {
	ConsentHandle string
	RedirectURL   *string
	Status        domain.ConsentStatus
}

// Connector is implemented by every bank data provider.
type Connector interface {
	// ProviderName is the registry key, e.g. "mock" or "setu_aa".
	ProviderName() string

	// CreateConsent starts an out-of-band authorization flow.
	CreateConsent(ctx context.Context, userID string, opts ConsentOptions) (*ConsentResult, error)

	// CheckConsentStatus is idempotent and safe to poll. Unmapped upstream states
	// must be reported as pending, never approved.
	CheckConsentStatus(ctx context.Context, consentHandle string) (domain.ConsentStatus, error)

	// FetchAccounts returns the accounts available under a consent.
	FetchAccounts(ctx context.Context, consentHandle string) ([]domain.BankAccount, error)

	// FetchTransactions returns the transactions of the closed interval [from, to].
	FetchTransactions(ctx context.Context, consentHandle, accountID string, from, to domain.Date) (*domain.SyncResult, error)

	// RefreshTransactions returns everything after cursor up to today. A nil cursor
	// means no prior sync and selects the provider's default lookback window.
	RefreshTransactions(ctx context.Context, consentHandle, accountID string, cursor *string) (*domain.SyncResult, error)
}
