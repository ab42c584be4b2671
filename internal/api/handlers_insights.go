package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/finmind/banksync-service/internal/app"
)

// InsightsHandlers serves the spending insight endpoints.
type InsightsHandlers struct {
	budget *app.BudgetService
}

func NewInsightsHandlers(budget *app.BudgetService) *InsightsHandlers {
	return &InsightsHandlers{budget: budget}
}

// BudgetSuggestionHandler serves GET /insights/budget-suggestion?month=YYYY-MM&months=N.
// A missing or unparsable months value falls back to the default lookback.
func (h *InsightsHandlers) BudgetSuggestionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	month := strings.TrimSpace(query.Get("month"))
	months := app.DefaultLookbackMonths
	if raw := strings.TrimSpace(query.Get("months")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			months = n
		}
	}

	suggestion, err := h.budget.Suggest(r.Context(), userID, month, months)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
