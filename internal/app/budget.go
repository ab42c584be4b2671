/**
 * @description
 * This file implements the budget suggestion engine. It reads monthly spending
 * aggregates from the ledger and proposes a budget for a target month.
 *
 * Key features:
 * - Linear recency weighting over the months that have data, newest weighted highest.
 * - 50/30/20 needs/wants/savings breakdown and a confidence score that grows with history.
 * - Aggregate and per-category trends (>2% increasing, <-2% decreasing).
 * - A fixed 500 budget for users with no history, so the endpoint never fails on empty data.
 * - Optional generative refinement with unconditional fallback to the heuristic.
 *
 * @notes
 * - Income rows never enter the math; the repository aggregate already excludes them.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finmind/banksync-service/internal/domain"
	"github.com/finmind/banksync-service/internal/store"
)

const (
	MinLookbackMonths     = 3
	MaxLookbackMonths     = 6
	DefaultLookbackMonths = MaxLookbackMonths

	DefaultBudgetTotal = 500.0

	monthLayout = "2006-01"

	fullDataReduction = 0.95
	thinDataReduction = 0.90
	trendThresholdPct = 2.0
	maxTips           = 3
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// BudgetService builds budget suggestions from the expense ledger.
type BudgetService struct {
	expenses  store.ExpenseRepository
	generator TextGenerator
	cache     BudgetCache
	now       func() time.Time
}

func NewBudgetService(expenses store.ExpenseRepository) *BudgetService {
	return &BudgetService{expenses: expenses, now: time.Now}
}

// SetTextGenerator enables the generative refinement path.
func (s *BudgetService) SetTextGenerator(generator TextGenerator) {
	s.generator = generator
}

func (s *BudgetService) SetCache(cache BudgetCache) {
	s.cache = cache
}

// ClampLookback bounds the lookback window to [3, 6] months.
func ClampLookback(months int) int {
	if months < MinLookbackMonths {
		return MinLookbackMonths
	}
	if months > MaxLookbackMonths {
		return MaxLookbackMonths
	}
	return months
}

// ParseMonth validates a YYYY-MM string and returns the first day of that month.
func ParseMonth(raw string) (time.Time, error) {
	if !monthPattern.MatchString(raw) {
		return time.Time{}, fmt.Errorf("%w: invalid month, expected YYYY-MM", domain.ErrInvalidArgument)
	}
	t, err := time.Parse(monthLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid month, expected YYYY-MM", domain.ErrInvalidArgument)
	}
	return t, nil
}

// Suggest returns the budget suggestion of userID for month (YYYY-MM, empty means
// the current month) using the lookbackMonths months before it.
func (s *BudgetService) Suggest(ctx context.Context, userID, month string, lookbackMonths int) (*domain.BudgetSuggestion, error) {
	if month == "" {
		month = s.now().UTC().Format(monthLayout)
	}
	target, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}
	lookbackMonths = ClampLookback(lookbackMonths)

	cacheKey := BudgetCacheKey(userID, month, lookbackMonths)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			log.Printf("level=info component=budget msg=\"budget suggestion cache hit\" user_id=%s month=%s", userID, month)
			return cached, nil
		}
	}

	window := monthWindow(target, lookbackMonths)
	totals, err := s.expenses.MonthlyCategoryTotals(ctx, userID, domain.DateOf(window[0]), domain.DateOf(target))
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly totals: %w", err)
	}

	suggestion := buildHeuristic(month, window, totals)
	if s.generator != nil && suggestion.Confidence.MonthsAnalyzed > 0 {
		suggestion = s.refineWithGenerator(ctx, suggestion)
	}

	if s.cache != nil && len(suggestion.Warnings) == 0 {
		s.cache.Set(ctx, cacheKey, suggestion)
	}

	log.Printf("level=info component=budget msg=\"budget suggestion served\" user_id=%s month=%s lookback=%d method=%s", userID, month, lookbackMonths, suggestion.Method)
	return suggestion, nil
}

// monthWindow returns the n months before target, oldest first.
func monthWindow(target time.Time, n int) []time.Time {
	window := make([]time.Time, n)
	for i := 0; i < n; i++ {
		window[i] = target.AddDate(0, i-n, 0)
	}
	return window
}

type categorySeries struct {
	name   string
	months map[string]decimal.Decimal
}

func buildHeuristic(month string, window []time.Time, totals []domain.MonthlyCategoryTotal) *domain.BudgetSuggestion {
	keys := make([]string, len(window))
	for i, m := range window {
		keys[i] = m.Format(monthLayout)
	}

	monthSums := make(map[string]decimal.Decimal, len(keys))
	categories := make(map[string]*categorySeries)
	for _, row := range totals {
		monthSums[row.Month] = monthSums[row.Month].Add(row.Total)
		series, ok := categories[row.Category]
		if !ok {
			series = &categorySeries{name: row.Category, months: make(map[string]decimal.Decimal)}
			categories[row.Category] = series
		}
		series.months[row.Month] = series.months[row.Month].Add(row.Total)
	}

	monthlyTotals := make(map[string]float64, len(keys))
	var nonZero []float64
	var withData []string
	for _, key := range keys {
		value := round2(monthSums[key].InexactFloat64())
		monthlyTotals[key] = value
		if value > 0 {
			nonZero = append(nonZero, value)
			withData = append(withData, key)
		}
	}

	dataRange := domain.BudgetDataRange{
		MonthsRequested: len(keys),
		MonthsWithData:  len(withData),
		OldestMonth:     keys[0],
		NewestMonth:     keys[len(keys)-1],
	}
	if len(withData) > 0 {
		dataRange.OldestMonth = withData[0]
		dataRange.NewestMonth = withData[len(withData)-1]
	}

	if len(nonZero) == 0 {
		return &domain.BudgetSuggestion{
			Month:               month,
			SuggestedTotal:      DefaultBudgetTotal,
			Breakdown:           splitBudget(DefaultBudgetTotal),
			Confidence:          confidenceFor(0),
			SpendingTrend:       domain.SpendingTrend{Direction: domain.TrendStable, ChangePct: 0},
			CategorySuggestions: []domain.CategorySuggestion{},
			MonthlyTotals:       monthlyTotals,
			DataRange:           dataRange,
			Tips:                defaultTips(),
			Method:              domain.BudgetMethodHeuristicDefault,
		}
	}

	suggestedTotal := round2(weightedAverage(nonZero) * reductionFactor(len(nonZero)))
	suggestion := &domain.BudgetSuggestion{
		Month:               month,
		SuggestedTotal:      suggestedTotal,
		Breakdown:           splitBudget(suggestedTotal),
		Confidence:          confidenceFor(len(nonZero)),
		SpendingTrend:       trendOf(nonZero),
		CategorySuggestions: categorySuggestions(keys, categories),
		MonthlyTotals:       monthlyTotals,
		DataRange:           dataRange,
		Method:              domain.BudgetMethodHeuristic,
	}
	suggestion.Tips = heuristicTips(suggestion)
	return suggestion
}

func categorySuggestions(keys []string, categories map[string]*categorySeries) []domain.CategorySuggestion {
	out := make([]domain.CategorySuggestion, 0, len(categories))
	for _, series := range categories {
		history := make(map[string]float64, len(keys))
		var values []float64
		for _, key := range keys {
			value := round2(series.months[key].InexactFloat64())
			history[key] = value
			if value > 0 {
				values = append(values, value)
			}
		}
		if len(values) == 0 {
			continue
		}

		average := weightedAverage(values)
		trend := trendOf(values)
		out = append(out, domain.CategorySuggestion{
			CategoryName:    series.name,
			AverageSpending: round2(average),
			SuggestedLimit:  round2(average * reductionFactor(len(values))),
			TrendPct:        trend.ChangePct,
			TrendDirection:  trend.Direction,
			MonthsWithData:  len(values),
			MonthlyHistory:  history,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageSpending != out[j].AverageSpending {
			return out[i].AverageSpending > out[j].AverageSpending
		}
		return out[i].CategoryName < out[j].CategoryName
	})
	return out
}

// weightedAverage weights values[i] by i+1, so the newest value counts most.
func weightedAverage(values []float64) float64 {
	var sum, weights float64
	for i, v := range values {
		w := float64(i + 1)
		sum += v * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

func reductionFactor(monthsWithData int) float64 {
	if monthsWithData >= 3 {
		return fullDataReduction
	}
	return thinDataReduction
}

func splitBudget(total float64) domain.BudgetBreakdown {
	return domain.BudgetBreakdown{
		Needs:   round2(total * 0.5),
		Wants:   round2(total * 0.3),
		Savings: round2(total * 0.2),
	}
}

func confidenceFor(monthsWithData int) domain.BudgetConfidence {
	if monthsWithData <= 0 {
		return domain.BudgetConfidence{Score: 0, Label: domain.ConfidenceNoData, MonthsAnalyzed: 0}
	}
	score := round2(1 - math.Exp(-0.5*float64(monthsWithData)))
	label := domain.ConfidenceVeryHigh
	switch {
	case score < 0.3:
		label = domain.ConfidenceLow
	case score < 0.6:
		label = domain.ConfidenceMedium
	case score < 0.85:
		label = domain.ConfidenceHigh
	}
	return domain.BudgetConfidence{Score: score, Label: label, MonthsAnalyzed: monthsWithData}
}

// trendOf compares the newest value with the mean of the ones before it.
func trendOf(values []float64) domain.SpendingTrend {
	stable := domain.SpendingTrend{Direction: domain.TrendStable, ChangePct: 0}
	if len(values) < 2 {
		return stable
	}
	prior := values[:len(values)-1]
	var sum float64
	for _, v := range prior {
		sum += v
	}
	mean := sum / float64(len(prior))
	if mean == 0 {
		return stable
	}

	pct := round2((values[len(values)-1] - mean) / mean * 100)
	switch {
	case pct > trendThresholdPct:
		return domain.SpendingTrend{Direction: domain.TrendIncreasing, ChangePct: pct}
	case pct < -trendThresholdPct:
		return domain.SpendingTrend{Direction: domain.TrendDecreasing, ChangePct: pct}
	default:
		return domain.SpendingTrend{Direction: domain.TrendStable, ChangePct: pct}
	}
}

func defaultTips() []string {
	return []string{
		"Connect a bank account or record expenses to get a budget based on your own spending.",
		"Cap discretionary spending in the highest category by 10%.",
		"Set one automatic transfer to savings on payday.",
	}
}

func heuristicTips(s *domain.BudgetSuggestion) []string {
	tips := make([]string, 0, maxTips)
	if len(s.CategorySuggestions) > 0 {
		top := s.CategorySuggestions[0]
		tips = append(tips, fmt.Sprintf("Keep %s under %.2f this month; it is your largest spending category.", top.CategoryName, top.SuggestedLimit))
	}
	if s.SpendingTrend.Direction == domain.TrendIncreasing {
		tips = append(tips, fmt.Sprintf("Spending rose %.2f%% against your earlier average; review recent discretionary purchases.", s.SpendingTrend.ChangePct))
	}
	tips = append(tips, fmt.Sprintf("Set one automatic transfer of %.2f to savings on payday.", s.Breakdown.Savings))
	if len(tips) < maxTips && s.Confidence.MonthsAnalyzed < 3 {
		tips = append(tips, "Suggestions get more accurate as more months of transactions are synced.")
	}
	if len(tips) > maxTips {
		tips = tips[:maxTips]
	}
	return tips
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
