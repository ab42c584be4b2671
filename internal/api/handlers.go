package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finmind/banksync-service/internal/app"
	"github.com/finmind/banksync-service/internal/domain"
)

const maxRequestBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error kinds onto HTTP statuses. Upstream and
// infrastructure details stay in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *app.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
	case errors.Is(err, domain.ErrConsentRejected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownProvider),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrNotActive):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, domain.ErrSyncInProgress.Error())
	case errors.Is(err, domain.ErrProviderFailure):
		log.Printf("level=warn component=api msg=\"provider request failed\" path=%s err=%v", r.URL.Path, err)
		writeError(w, http.StatusBadGateway, "bank provider request failed")
	case errors.Is(err, domain.ErrConfiguration):
		log.Printf("level=error component=api msg=\"provider not configured\" path=%s err=%v", r.URL.Path, err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("level=error component=api msg=\"request failed\" path=%s err=%v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSONBody decodes an optional JSON body. An empty body leaves dst untouched.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

// connectionIDParam parses the {connectionID} path segment. A malformed id cannot name
// an existing connection, so it is reported as not found.
func connectionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
		return uuid.Nil, false
	}
	return id, true
}
