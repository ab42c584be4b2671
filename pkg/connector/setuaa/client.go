/**
 * @description
 * This package provides a client for the Setu Account Aggregator gateway and the
 * connector that maps its consent and data-session API onto the bank sync contract.
 *
 * Key features:
 * - Authenticated JSON requests using the two static client credential headers.
 * - Per-endpoint timeouts: consent calls are cheap, the FI data fetch is the slowest.
 * - Non-2xx responses and undecodable bodies surface as provider failures.
 *
 * @dependencies
 * - The service's internal domain package for the shared error kinds.
 */
package setuaa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finmind/banksync-service/internal/domain"
)

// DefaultBaseURL is the Setu FIU sandbox.
const DefaultBaseURL = "https://fiu-sandbox.setu.co/v2"

const (
	createConsentTimeout  = 30 * time.Second
	getConsentTimeout     = 15 * time.Second
	createSessionTimeout  = 30 * time.Second
	getSessionTimeout     = 30 * time.Second
	getSessionDataTimeout = 60 * time.Second
)

// Client is a client for the Setu AA API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates a new Setu AA API client. Timeouts are applied per call, so the
// http.Client itself carries none.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{},
	}
}

// ConsentRequest is the body of POST /consents.
type ConsentRequest struct {
	Detail      ConsentDetail `json:"Detail"`
	RedirectURL string        `json:"redirectUrl"`
}

// ConsentDetail describes the data the user is asked to share.
type ConsentDetail struct {
	ConsentStart  string         `json:"consentStart"`
	ConsentExpiry string         `json:"consentExpiry"`
	ConsentMode   string         `json:"consentMode"`
	FetchType     string         `json:"fetchType"`
	ConsentTypes  []string       `json:"consentTypes"`
	FITypes       []string       `json:"fiTypes"`
	DataConsumer  IDRef          `json:"DataConsumer"`
	Customer      IDRef          `json:"Customer"`
	Purpose       ConsentPurpose `json:"Purpose"`
	FIDataRange   DateTimeRange  `json:"FIDataRange"`
	DataLife      UnitValue      `json:"DataLife"`
	Frequency     UnitValue      `json:"Frequency"`
}

type IDRef struct {
	ID string `json:"id"`
}

type ConsentPurpose struct {
	Code     string            `json:"code"`
	RefURI   string            `json:"refUri"`
	Text     string            `json:"text"`
	Category map[string]string `json:"Category"`
}

type DateTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UnitValue struct {
	Unit  string `json:"unit"`
	Value int    `json:"value"`
}

// ConsentResponse is returned by POST /consents. Older gateway versions use the
// capitalized field names.
type ConsentResponse struct {
	ID            string `json:"id"`
	ConsentHandle string `json:"ConsentHandle"`
	URL           string `json:"url"`
	RedirectURL   string `json:"redirectUrl"`
	Status        string `json:"status"`
}

// Handle returns whichever consent identifier the gateway sent.
func (r ConsentResponse) Handle() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ConsentHandle
}

// Redirect returns whichever redirect field the gateway sent.
func (r ConsentResponse) Redirect() string {
	if r.URL != "" {
		return r.URL
	}
	return r.RedirectURL
}

// SessionRequest is the body of POST /sessions.
type SessionRequest struct {
	ConsentID string        `json:"consentId"`
	DataRange DateTimeRange `json:"DataRange"`
	Format    string        `json:"format"`
}

// SessionResponse is returned by POST /sessions.
type SessionResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func (r SessionResponse) Session() string {
	if r.ID != "" {
		return r.ID
	}
	return r.SessionID
}

// SessionDetail is returned by GET /sessions/{id}.
type SessionDetail struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Accounts       []map[string]any `json:"accounts"`
	LegacyAccounts []map[string]any `json:"Accounts"`
}

// AccountList returns the linked accounts of a session in either casing.
func (d SessionDetail) AccountList() []map[string]any {
	if len(d.Accounts) > 0 {
		return d.Accounts
	}
	return d.LegacyAccounts
}

// ErrorResponse is the gateway's error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
	TraceID   string `json:"traceId"`
}

// CreateConsent starts a consent request.
func (c *Client) CreateConsent(ctx context.Context, req ConsentRequest) (*ConsentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, createConsentTimeout)
	defer cancel()

	var resp ConsentResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/consents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConsent fetches the current state of a consent.
func (c *Client) GetConsent(ctx context.Context, consentID string) (*ConsentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, getConsentTimeout)
	defer cancel()

	var resp ConsentResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/consents/"+url.PathEscape(consentID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSession opens a data session for a consent over the given range.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, createSessionTimeout)
	defer cancel()

	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession fetches a data session and its linked accounts.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, getSessionTimeout)
	defer cancel()

	var resp SessionDetail
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessionData fetches the raw FI payload of a session. The shape varies between
// gateway versions, so it is returned undecoded.
func (c *Client) GetSessionData(ctx context.Context, sessionID string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, getSessionDataTimeout)
	defer cancel()

	var resp json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/sessions/"+url.PathEscape(sessionID)+"/data", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// do makes an authenticated request against the Setu API.
func (c *Client) do(ctx context.Context, method, endpoint string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.clientSecret)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=setu_client method=%s path=%s msg=\"request failed\" err=%v", method, pathOf(endpoint, c.baseURL), err)
		return fmt.Errorf("%w: setu %s %s: %v", domain.ErrProviderFailure, method, pathOf(endpoint, c.baseURL), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read setu response: %v", domain.ErrProviderFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr != nil || errResp.ErrorCode == "" {
			log.Printf("level=warn component=setu_client method=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, pathOf(endpoint, c.baseURL), resp.StatusCode)
			return fmt.Errorf("%w: setu returned status %d", domain.ErrProviderFailure, resp.StatusCode)
		}
		log.Printf("level=warn component=setu_client method=%s path=%s status=%d code=%q trace_id=%s", method, pathOf(endpoint, c.baseURL), resp.StatusCode, errResp.ErrorCode, errResp.TraceID)
		return fmt.Errorf("%w: setu returned status %d: %s %s", domain.ErrProviderFailure, resp.StatusCode, errResp.ErrorCode, errResp.ErrorMsg)
	}

	log.Printf("level=info component=setu_client method=%s path=%s status=%d duration_ms=%d", method, pathOf(endpoint, c.baseURL), resp.StatusCode, time.Since(started).Milliseconds())

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("%w: failed to decode setu response: %v", domain.ErrProviderFailure, err)
		}
	}
	return nil
}

// pathOf returns endpoint relative to the base URL.
func pathOf(endpoint, base string) string {
	return strings.TrimPrefix(endpoint, base)
}
