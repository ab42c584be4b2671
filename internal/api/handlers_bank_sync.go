/**
 * @description
 * HTTP handlers for the bank sync flow: provider discovery, consent, account
 * selection, manual sync and refresh, audit logs and disconnect.
 *
 * @notes
 * - Sync and refresh consume the per-user rate limit before touching the connection.
 */

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/finmind/banksync-service/internal/app"
	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/pkg/connector"
)

// BankSyncHandlers holds the dependencies for the bank sync endpoints.
type BankSyncHandlers struct {
	service *app.BankSyncService
}

func NewBankSyncHandlers(service *app.BankSyncService) *BankSyncHandlers {
	return &BankSyncHandlers{service: service}
}

type connectRequest struct {
	Provider    string `json:"provider"`
	Mobile      string `json:"mobile"`
	RedirectURL string `json:"redirect_url"`
	Currency    string `json:"currency"`
}

type selectAccountRequest struct {
	AccountID string `json:"account_id"`
}

type syncRequest struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

func (h *BankSyncHandlers) ListProvidersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.service.GetAvailableProviders()})
}

func (h *BankSyncHandlers) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Provider) == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	result, err := h.service.InitiateConnection(r.Context(), userID, req.Provider, connector.ConsentOptions{
		Mobile:      req.Mobile,
		RedirectURL: req.RedirectURL,
		Currency:    req.Currency,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *BankSyncHandlers) ListConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	connections, err := h.service.GetConnections(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if connections == nil {
		connections = []domain.BankConnection{}
	}
	writeJSON(w, http.StatusOK, connections)
}

func (h *BankSyncHandlers) ConfirmConsentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.ConfirmConsent(r.Context(), userID, connectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BankSyncHandlers) SelectAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	var req selectAccountRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	result, err := h.service.SelectAccount(r.Context(), userID, connectionID, req.AccountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BankSyncHandlers) SyncHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	from, err := optionalDate(req.FromDate, "from_date")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	to, err := optionalDate(req.ToDate, "to_date")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.service.CheckSyncRateLimit(r.Context(), userID, domain.SyncTypeFull); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry, err := h.service.SyncConnection(r.Context(), userID, connectionID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *BankSyncHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.CheckSyncRateLimit(r.Context(), userID, domain.SyncTypeRefresh); err != nil {
		writeServiceError(w, r, err)
		return
	}

	entry, err := h.service.RefreshConnection(r.Context(), userID, connectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *BankSyncHandlers) ListSyncLogsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	logs, err := h.service.GetSyncLogs(r.Context(), userID, connectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.SyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *BankSyncHandlers) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	connectionID, ok := connectionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID, connectionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "disconnected"})
}

func optionalDate(raw, field string) (*domain.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
