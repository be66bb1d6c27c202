package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

const (
	// moodMinStressed is the minimum number of stressed-tagged expenses
	// before the mood rule fires at all.
	moodMinStressed = 3
	// moodFoodShare: stressed food spend above this share of all food
	// spend triggers the finding.
	moodFoodShare = 0.55

	breadthConcentrated = 4
	breadthFragmented   = 10

	// volatilityTrendMinRecords is required in both months before the
	// trend rule applies.
	volatilityTrendMinRecords = 10
	volatilityTrendThreshold  = 0.18
)

// foodCategories are the labels the mood rule treats as food spending.
var foodCategories = map[string]bool{
	"Food":   true,
	"Dining": true,
	"Snacks": true,
}

// Insight is a human-readable, rule-derived observation.
type Insight struct {
	ID     uuid.UUID
	Title  string
	Detail string
}

// InsightsGenerator applies independent heuristic rules to a month's
// approved expenses. Read-only.
type InsightsGenerator struct {
	store ledger.RecordStore
}

func NewInsightsGenerator(store ledger.RecordStore) *InsightsGenerator {
	return &InsightsGenerator{store: store}
}

// Generate evaluates every rule and concatenates the results. An empty
// month short-circuits into a single "start logging" prompt.
func (g *InsightsGenerator) Generate(ctx context.Context, monthKey time.Time, currency string) ([]Insight, error) {
	expenses, err := g.approvedExpenses(ctx, monthKey, core.NextMonth(monthKey), currency)
	if err != nil {
		return nil, fmt.Errorf("fetch expenses: %w", err)
	}

	if len(expenses) == 0 {
		return []Insight{newInsight(
			"Start logging daily",
			"Add at least one expense per day to unlock meaningful insights.",
		)}, nil
	}

	var insights []Insight
	insights = append(insights, moodCorrelation(expenses)...)
	insights = append(insights, categoryBreadth(expenses)...)

	trend, err := g.volatilityTrend(ctx, monthKey, currency, expenses)
	if err != nil {
		return nil, fmt.Errorf("volatility trend: %w", err)
	}
	insights = append(insights, trend...)

	return insights, nil
}

func (g *InsightsGenerator) approvedExpenses(ctx context.Context, from, to time.Time, currency string) ([]core.MoneyRecord, error) {
	return g.store.ListRecords(ctx, ledger.RecordQuery{
		From:     from,
		To:       to,
		Currency: currency,
		Kind:     core.KindExpense,
		Approval: core.ApprovalApproved,
	})
}

func moodCorrelation(expenses []core.MoneyRecord) []Insight {
	stressedCount := 0
	stressedFood := 0.0
	allFood := 0.0
	for _, e := range expenses {
		isFood := foodCategories[e.Category]
		if isFood {
			allFood += e.Amount.InexactFloat64()
		}
		if e.EmotionalTag == core.TagStressed {
			stressedCount++
			if isFood {
				stressedFood += e.Amount.InexactFloat64()
			}
		}
	}
	if stressedCount < moodMinStressed {
		return nil
	}

	if allFood > 0 && stressedFood/allFood > moodFoodShare {
		return []Insight{newInsight(
			"Stress spending increases food expenses",
			"More than half of your Food spending happened on days marked as Stressed.",
		)}
	}
	return nil
}

func categoryBreadth(expenses []core.MoneyRecord) []Insight {
	categories := map[string]bool{}
	for _, e := range expenses {
		categories[e.Category] = true
	}
	n := len(categories)

	if n <= breadthConcentrated {
		return []Insight{newInsight(
			"You save better in months with fewer categories",
			fmt.Sprintf("This month your spending is concentrated across %d categories; this often correlates with higher savings.", n),
		)}
	}
	if n >= breadthFragmented {
		return []Insight{newInsight(
			"Spending is fragmented",
			fmt.Sprintf("You used %d categories this month. Consider consolidating categories to spot patterns faster.", n),
		)}
	}
	return nil
}

func (g *InsightsGenerator) volatilityTrend(ctx context.Context, monthKey time.Time, currency string, current []core.MoneyRecord) ([]Insight, error) {
	prevMonth := core.PrevMonth(monthKey)
	previous, err := g.approvedExpenses(ctx, prevMonth, monthKey, currency)
	if err != nil {
		return nil, err
	}

	if len(previous) < volatilityTrendMinRecords || len(current) < volatilityTrendMinRecords {
		return nil, nil
	}

	prevCv := dailyCv(previous)
	currCv := dailyCv(current)
	if prevCv <= 0 {
		return nil, nil
	}

	change := (currCv - prevCv) / prevCv
	if change >= volatilityTrendThreshold {
		pct := int(math.Round(change * 100))
		return []Insight{newInsight(
			fmt.Sprintf("Your spending volatility increased %d%%", pct),
			"Your day-to-day spending swings are larger than last month. Try setting smaller daily caps.",
		)}, nil
	}
	return nil, nil
}

// dailyCv is the coefficient of variation of per-day expense totals.
// Fewer than two distinct days yields 0.
func dailyCv(expenses []core.MoneyRecord) float64 {
	daily := dailyTotals(expenses)
	if len(daily) < 2 {
		return 0
	}
	cv := coefficientOfVariation(daily)
	if cv < 0 {
		return 0
	}
	return cv
}

func newInsight(title, detail string) Insight {
	return Insight{ID: uuid.New(), Title: title, Detail: detail}
}
