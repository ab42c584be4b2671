/**
 * @description
 * This file defines the response model of the budget suggestion engine.
 * The same shape is produced by the heuristic and by the optional AI path.
 */
package domain

// Budget suggestion methods.
const (
	BudgetMethodHeuristic        = "heuristic"
	BudgetMethodHeuristicDefault = "heuristic_default"
	BudgetMethodAI               = "ai"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Confidence labels.
const (
	ConfidenceNoData   = "no_data"
	ConfidenceLow      = "low"
	ConfidenceMedium   = "medium"
	ConfidenceHigh     = "high"
	ConfidenceVeryHigh = "very_high"
)

// WarningAIUnavailable is attached when the AI path failed and the heuristic answered.
const WarningAIUnavailable = "ai_unavailable"

// BudgetBreakdown is the 50/30/20 split of a suggested total.
type BudgetBreakdown struct {
	Needs   float64 `json:"needs"`
	Wants   float64 `json:"wants"`
	Savings float64 `json:"savings"`
}

// BudgetConfidence scores how much history backs a suggestion.
type BudgetConfidence struct {
	Score          float64 `json:"score"`
	Label          string  `json:"label"`
	MonthsAnalyzed int     `json:"months_analyzed"`
}

// SpendingTrend compares the latest month with the mean of the months before it.
type SpendingTrend struct {
	Direction string  `json:"direction"`
	ChangePct float64 `json:"change_pct"`
}

// CategorySuggestion is the per-category part of a suggestion.
type CategorySuggestion struct {
	CategoryName    string             `json:"category_name"`
	AverageSpending float64            `json:"average_spending"`
	SuggestedLimit  float64            `json:"suggested_limit"`
	TrendPct        float64            `json:"trend_pct"`
	TrendDirection  string             `json:"trend_direction"`
	MonthsWithData  int                `json:"months_with_data"`
	MonthlyHistory  map[string]float64 `json:"monthly_history"`
}

// BudgetDataRange describes the analysed window.
type BudgetDataRange struct {
	MonthsRequested int    `json:"months_requested"`
	MonthsWithData  int    `json:"months_with_data"`
	OldestMonth     string `json:"oldest_month"`
	NewestMonth     string `json:"newest_month"`
}

// BudgetSuggestion is the full budget suggestion for one user and month.
type BudgetSuggestion struct {
	Month               string               `json:"month"`
	SuggestedTotal      float64              `json:"suggested_total"`
	Breakdown           BudgetBreakdown      `json:"breakdown"`
	Confidence          BudgetConfidence     `json:"confidence"`
	SpendingTrend       SpendingTrend        `json:"spending_trend"`
	CategorySuggestions []CategorySuggestion `json:"category_suggestions"`
	MonthlyTotals       map[string]float64   `json:"monthly_totals"`
	DataRange           BudgetDataRange      `json:"data_range"`
	Tips                []string             `json:"tips"`
	Method              string               `json:"method"`
	Warnings            []string             `json:"warnings,omitempty"`
}
