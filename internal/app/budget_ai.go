package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/finmind/banksync-service/internal/domain"
)

const generatorTimeout = 15 * time.Second

// TextGenerator is a single-shot prompt/response backend such as pkg/gemini.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

var errNoJSONObject = errors.New("model did not return a JSON object")

type generatedCategory struct {
	CategoryName   string  `json:"category_name"`
	SuggestedLimit float64 `json:"suggested_limit"`
}

type generatedBudget struct {
	SuggestedTotal      float64                 `json:"suggested_total"`
	Breakdown           *domain.BudgetBreakdown `json:"breakdown"`
	CategorySuggestions []generatedCategory     `json:"category_suggestions"`
	Tips                []string                `json:"tips"`
}

type promptCategory struct {
	CategoryName    string  `json:"category_name"`
	AverageSpending float64 `json:"average_spending"`
	TrendPct        float64 `json:"trend_pct"`
}

type promptInput struct {
	Month          string               `json:"month"`
	MonthlyTotals  map[string]float64   `json:"monthly_totals"`
	Categories     []promptCategory     `json:"categories"`
	SpendingTrend  domain.SpendingTrend `json:"spending_trend"`
	HeuristicTotal float64              `json:"heuristic_total"`
	MonthsWithData int                  `json:"months_with_data"`
}

// refineWithGenerator asks the generator for a budget and merges it into the
// heuristic result. Any failure returns the heuristic with an ai_unavailable warning.
func (s *BudgetService) refineWithGenerator(ctx context.Context, heuristic *domain.BudgetSuggestion) *domain.BudgetSuggestion {
	refined, err := s.generate(ctx, heuristic)
	if err != nil {
		log.Printf("level=warn component=budget msg=\"generative budget unavailable; using heuristic\" month=%s err=%v", heuristic.Month, err)
		heuristic.Warnings = append(heuristic.Warnings, domain.WarningAIUnavailable)
		return heuristic
	}
	return refined
}

func (s *BudgetService) generate(ctx context.Context, heuristic *domain.BudgetSuggestion) (*domain.BudgetSuggestion, error) {
	prompt, err := buildBudgetPrompt(heuristic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, generatorTimeout)
	defer cancel()

	raw, err := s.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var generated generatedBudget
	if err := extractJSONObject(raw, &generated); err != nil {
		return nil, err
	}
	if !(generated.SuggestedTotal > 0) || math.IsInf(generated.SuggestedTotal, 0) {
		return nil, fmt.Errorf("invalid suggested_total %v", generated.SuggestedTotal)
	}
	return mergeGenerated(heuristic, generated), nil
}

func buildBudgetPrompt(s *domain.BudgetSuggestion) (string, error) {
	input := promptInput{
		Month:          s.Month,
		MonthlyTotals:  s.MonthlyTotals,
		Categories:     make([]promptCategory, 0, len(s.CategorySuggestions)),
		SpendingTrend:  s.SpendingTrend,
		HeuristicTotal: s.SuggestedTotal,
		MonthsWithData: s.Confidence.MonthsAnalyzed,
	}
	for _, c := range s.CategorySuggestions {
		input.Categories = append(input.Categories, promptCategory{
			CategoryName:    c.CategoryName,
			AverageSpending: c.AverageSpending,
			TrendPct:        c.TrendPct,
		})
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal prompt input: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a careful personal finance assistant.\n")
	b.WriteString("Using the spending history below, propose a monthly budget for the target month.\n")
	b.WriteString("Return strict JSON only, no prose, with keys: ")
	b.WriteString("suggested_total (number > 0), breakdown {needs, wants, savings}, ")
	b.WriteString("category_suggestions [{category_name, suggested_limit}], tips (list of at most 3 strings).\n")
	b.WriteString("data=")
	b.Write(data)
	return b.String(), nil
}

// extractJSONObject tolerates code fences and prose around the first JSON object.
func extractJSONObject(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
		text = strings.TrimSpace(text)
		if strings.HasPrefix(strings.ToLower(text), "json") {
			text = strings.TrimSpace(text[4:])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return errNoJSONObject
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode generated budget: %w", err)
	}
	return nil
}

// mergeGenerated keeps the heuristic confidence, trend, totals and data range and
// takes the total, breakdown, category limits and tips from the generator.
func mergeGenerated(heuristic *domain.BudgetSuggestion, generated generatedBudget) *domain.BudgetSuggestion {
	merged := *heuristic
	merged.SuggestedTotal = round2(generated.SuggestedTotal)
	merged.Breakdown = splitBudget(merged.SuggestedTotal)
	if b := generated.Breakdown; b != nil && b.Needs >= 0 && b.Wants >= 0 && b.Savings >= 0 &&
		math.Abs(b.Needs+b.Wants+b.Savings-merged.SuggestedTotal) <= 0.02 {
		merged.Breakdown = domain.BudgetBreakdown{Needs: round2(b.Needs), Wants: round2(b.Wants), Savings: round2(b.Savings)}
	}

	limits := make(map[string]float64, len(generated.CategorySuggestions))
	for _, c := range generated.CategorySuggestions {
		if c.SuggestedLimit >= 0 {
			limits[strings.ToLower(strings.TrimSpace(c.CategoryName))] = c.SuggestedLimit
		}
	}
	merged.CategorySuggestions = make([]domain.CategorySuggestion, len(heuristic.CategorySuggestions))
	for i, c := range heuristic.CategorySuggestions {
		if limit, ok := limits[strings.ToLower(c.CategoryName)]; ok {
			c.SuggestedLimit = round2(limit)
		}
		merged.CategorySuggestions[i] = c
	}

	tips := make([]string, 0, maxTips)
	for _, tip := range generated.Tips {
		if tip = strings.TrimSpace(tip); tip != "" && len(tips) < maxTips {
			tips = append(tips, tip)
		}
	}
	if len(tips) > 0 {
		merged.Tips = tips
	}

	merged.Method = domain.BudgetMethodAI
	merged.Warnings = nil
	return &merged
}
