package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

// ScorePolicy collects the tunable constants of the health score so the
// aggregation logic stays free of magic numbers.
type ScorePolicy struct {
	AdherenceWeight   float64
	ConsistencyWeight float64
	SavingsWeight     float64
	VolatilityWeight  float64

	// Neutral baselines when a sub-score has no data to work with.
	NoBudgetBaseline   int
	NoIncomeBaseline   int
	FewDaysBaseline    int
	MinVolatilityDays  int

	OverspendPenalty  float64 // per unit of ratio above 1.0
	UnderspendPenalty float64 // per unit of ratio below 1.0

	ConsistencyTarget float64 // fraction of days with an expense for a full score
	SavingsTarget     float64 // savings/income ratio for a full score

	CvFloor   float64 // cv at or below scores 100
	CvCeiling float64 // cv at or above scores 0
}

// DefaultScorePolicy returns the production constants.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		AdherenceWeight:   0.35,
		ConsistencyWeight: 0.25,
		SavingsWeight:     0.25,
		VolatilityWeight:  0.15,

		NoBudgetBaseline:  60,
		NoIncomeBaseline:  40,
		FewDaysBaseline:   70,
		MinVolatilityDays: 5,

		OverspendPenalty:  60,
		UnderspendPenalty: 20,

		ConsistencyTarget: 0.6,
		SavingsTarget:     0.2,

		CvFloor:   0.3,
		CvCeiling: 1.0,
	}
}

// ScoreResult is the composite score and its weighted breakdown.
type ScoreResult struct {
	Score     int
	Breakdown map[string]int
}

// Breakdown keys.
const (
	SubScoreAdherence   = "Budget adherence"
	SubScoreConsistency = "Consistency"
	SubScoreSavings     = "Savings ratio"
	SubScoreVolatility  = "Volatility"
)

// HealthScorer computes the 0-100 monthly financial health score.
type HealthScorer struct {
	store  ledger.Store
	policy ScorePolicy
	pub    EventPublisher
}

func NewHealthScorer(store ledger.Store, policy ScorePolicy, pub EventPublisher) *HealthScorer {
	return &HealthScorer{store: store, policy: policy, pub: pub}
}

// Score computes the composite score for a month bucket. Every aggregate
// degrades to a neutral baseline instead of failing; only store I/O
// errors propagate.
func (s *HealthScorer) Score(ctx context.Context, monthKey time.Time, settings core.Settings) (ScoreResult, error) {
	monthEnd := core.NextMonth(monthKey)
	currency := settings.DefaultCurrencyCode

	expenses, err := s.approvedRecords(ctx, monthKey, monthEnd, currency, core.KindExpense)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("fetch expenses: %w", err)
	}
	income, err := s.approvedRecords(ctx, monthKey, monthEnd, currency, core.KindIncome)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("fetch income: %w", err)
	}

	budget, err := s.store.BudgetFor(ctx, monthKey)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("fetch budget: %w", err)
	}

	totalExpenses := 0.0
	for _, e := range expenses {
		totalExpenses += e.Amount.InexactFloat64()
	}
	totalIncome := 0.0
	for _, r := range income {
		totalIncome += r.Amount.InexactFloat64()
	}

	adherence := s.budgetAdherenceScore(expenses, budget)
	consistency := s.consistencyScore(expenses, monthKey, monthEnd)
	savings := s.savingsRatioScore(totalIncome, totalExpenses)
	volatility := s.volatilityScore(expenses)

	p := s.policy
	weighted := int(math.Round(
		p.AdherenceWeight*float64(adherence) +
			p.ConsistencyWeight*float64(consistency) +
			p.SavingsWeight*float64(savings) +
			p.VolatilityWeight*float64(volatility)))

	return ScoreResult{
		Score: clampScore(weighted),
		Breakdown: map[string]int{
			SubScoreAdherence:   adherence,
			SubScoreConsistency: consistency,
			SubScoreSavings:     savings,
			SubScoreVolatility:  volatility,
		},
	}, nil
}

// UpsertScore computes and persists the month's score, replacing any
// stored row for the same month key.
func (s *HealthScorer) UpsertScore(ctx context.Context, monthKey time.Time, settings core.Settings) error {
	result, err := s.Score(ctx, monthKey, settings)
	if err != nil {
		return err
	}

	record := core.NewFinancialScoreRecord(monthKey, result.Score, result.Breakdown)
	if err := s.store.UpsertScore(ctx, record); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}

	slog.InfoContext(ctx, "Financial score upserted",
		"month_key", core.FormatMonth(monthKey),
		"score", record.Score)

	if s.pub != nil {
		if err := s.pub.PublishScoreUpserted(ctx, record); err != nil {
			slog.ErrorContext(ctx, "Failed to publish score event",
				"month_key", core.FormatMonth(monthKey), "error", err)
		}
	}
	return nil
}

func (s *HealthScorer) approvedRecords(ctx context.Context, from, to time.Time, currency string, kind core.RecordKind) ([]core.MoneyRecord, error) {
	return s.store.ListRecords(ctx, ledger.RecordQuery{
		From:     from,
		To:       to,
		Currency: currency,
		Kind:     kind,
		Approval: core.ApprovalApproved,
	})
}

func (s *HealthScorer) budgetAdherenceScore(expenses []core.MoneyRecord, budget *core.Budget) int {
	p := s.policy
	if budget == nil || len(budget.CategoryBudgets) == 0 {
		return p.NoBudgetBaseline
	}

	plannedTotal := 0.0
	actualTotal := 0.0
	for category, planned := range budget.CategoryBudgets {
		plannedTotal += planned.InexactFloat64()
		for _, e := range expenses {
			if e.Category == category {
				actualTotal += e.Amount.InexactFloat64()
			}
		}
	}
	if plannedTotal <= 0 {
		return p.NoBudgetBaseline
	}

	ratio := actualTotal / math.Max(1, plannedTotal)
	// Overspending hurts three times harder than underspending.
	penalty := math.Max(0, ratio-1)*p.OverspendPenalty + math.Max(0, 1-ratio)*p.UnderspendPenalty
	return clampScore(100 - int(math.Round(penalty)))
}

func (s *HealthScorer) consistencyScore(expenses []core.MoneyRecord, monthStart, monthEnd time.Time) int {
	days := core.DaysBetween(monthStart, monthEnd)
	distinct := map[time.Time]struct{}{}
	for _, e := range expenses {
		distinct[core.StartOfDay(e.OccurredAt)] = struct{}{}
	}
	ratio := float64(len(distinct)) / float64(days)
	return clampScore(int(math.Round(math.Min(1, ratio/s.policy.ConsistencyTarget) * 100)))
}

func (s *HealthScorer) savingsRatioScore(totalIncome, totalExpenses float64) int {
	p := s.policy
	income := math.Max(0, totalIncome)
	expenses := math.Max(0, totalExpenses)
	if income <= 0 {
		return p.NoIncomeBaseline
	}
	savings := math.Max(0, income-expenses)
	ratio := savings / income
	return clampScore(int(math.Round(math.Min(1, ratio/p.SavingsTarget) * 100)))
}

func (s *HealthScorer) volatilityScore(expenses []core.MoneyRecord) int {
	p := s.policy
	daily := dailyTotals(expenses)
	if len(daily) < p.MinVolatilityDays {
		return p.FewDaysBaseline
	}

	cv := coefficientOfVariation(daily)
	if cv < 0 {
		return p.FewDaysBaseline
	}

	normalized := 1 - math.Min(1, math.Max(0, (cv-p.CvFloor)/(p.CvCeiling-p.CvFloor)))
	return clampScore(int(math.Round(normalized * 100)))
}

// dailyTotals sums approved expense amounts per calendar day.
func dailyTotals(expenses []core.MoneyRecord) map[time.Time]float64 {
	daily := map[time.Time]float64{}
	for _, e := range expenses {
		day := core.StartOfDay(e.OccurredAt)
		daily[day] += e.Amount.InexactFloat64()
	}
	return daily
}

// coefficientOfVariation returns stddev/mean of the daily totals using
// population variance, or -1 when the mean is not positive.
func coefficientOfVariation(daily map[time.Time]float64) float64 {
	n := float64(len(daily))
	if n == 0 {
		return -1
	}
	mean := 0.0
	for _, v := range daily {
		mean += v
	}
	mean /= n
	if mean <= 0 {
		return -1
	}

	variance := 0.0
	for _, v := range daily {
		variance += math.Pow(v-mean, 2)
	}
	variance /= n

	return math.Sqrt(variance) / mean
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
