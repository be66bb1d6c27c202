package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/ledger/memory"
)

func TestScoreEmptyMonth(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	monthKey := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	scorer := NewHealthScorer(store, DefaultScorePolicy(), nil)
	result, err := scorer.Score(ctx, monthKey, testSettings)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.Score < 0 || result.Score > 100 {
		t.Fatalf("score out of range: %d", result.Score)
	}

	// No budget, no income, no spend days: every sub-score sits on its
	// neutral baseline and consistency bottoms out.
	want := map[string]int{
		SubScoreAdherence:   60,
		SubScoreConsistency: 0,
		SubScoreSavings:     40,
		SubScoreVolatility:  70,
	}
	for key, expected := range want {
		if got := result.Breakdown[key]; got != expected {
			t.Fatalf("%s: expected %d, got %d", key, expected, got)
		}
	}
	if result.Score != 42 {
		t.Fatalf("expected composite 42, got %d", result.Score)
	}
}

func TestScoreBudgetAdherenceUnderspend(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	budget := core.NewBudget(july).WithCategoryBudget("Food", decimal.NewFromInt(8000))
	_ = store.UpsertBudget(ctx, budget)
	_ = store.CreateRecord(ctx, approvedExpense("Food", 6000, july.AddDate(0, 0, 9)))

	scorer := NewHealthScorer(store, DefaultScorePolicy(), nil)
	result, err := scorer.Score(ctx, july, testSettings)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	// ratio 0.75, underspend penalty 0.25*20 = 5.
	if got := result.Breakdown[SubScoreAdherence]; got != 95 {
		t.Fatalf("expected adherence 95, got %d", got)
	}
}

func TestScoreFullMonthDeterministic(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	budget := core.NewBudget(july).WithCategoryBudget("Food", decimal.NewFromInt(8000))
	_ = store.UpsertBudget(ctx, budget)
	// Five even spend days, total 6000.
	for day := 0; day < 5; day++ {
		_ = store.CreateRecord(ctx, approvedExpense("Food", 1200, july.AddDate(0, 0, day).Add(12*time.Hour)))
	}
	_ = store.CreateRecord(ctx, approvedIncome(10000, july.AddDate(0, 0, 1)))

	scorer := NewHealthScorer(store, DefaultScorePolicy(), nil)
	result, err := scorer.Score(ctx, july, testSettings)
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	want := map[string]int{
		SubScoreAdherence:   95,  // 6000/8000 underspend
		SubScoreConsistency: 27,  // 5 of 31 days vs 0.6 target
		SubScoreSavings:     100, // 4000/10000 vs 0.2 target
		SubScoreVolatility:  100, // equal daily totals, cv 0
	}
	for key, expected := range want {
		if got := result.Breakdown[key]; got != expected {
			t.Fatalf("%s: expected %d, got %d", key, expected, got)
		}
	}
	// 0.35*95 + 0.25*27 + 0.25*100 + 0.15*100 = 80.
	if result.Score != 80 {
		t.Fatalf("expected composite 80, got %d", result.Score)
	}
}

func TestScoreIgnoresDiscardedAndPending(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	budget := core.NewBudget(july).WithCategoryBudget("Food", decimal.NewFromInt(1000))
	_ = store.UpsertBudget(ctx, budget)

	pending := approvedExpense("Food", 900, july.AddDate(0, 0, 2))
	pending.ApprovalStatus = core.ApprovalPending
	_ = store.CreateRecord(ctx, pending)

	scorer := NewHealthScorer(store, DefaultScorePolicy(), nil)
	result, err := scorer.Score(ctx, july, testSettings)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Nothing approved: full underspend penalty, ratio 0 -> 100-20=80.
	if got := result.Breakdown[SubScoreAdherence]; got != 80 {
		t.Fatalf("expected adherence 80, got %d", got)
	}
}

func TestUpsertScorePersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	pub := &capturingPublisher{}
	scorer := NewHealthScorer(store, DefaultScorePolicy(), pub)
	if err := scorer.UpsertScore(ctx, july, testSettings); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stored, err := store.ScoreFor(ctx, july)
	if err != nil || stored == nil {
		t.Fatalf("expected stored score, got %v (err=%v)", stored, err)
	}
	if stored.Score != 42 {
		t.Fatalf("expected 42, got %d", stored.Score)
	}
	if len(pub.scores) != 1 {
		t.Fatalf("expected one published score, got %d", len(pub.scores))
	}

	// A second upsert replaces, never duplicates.
	if err := scorer.UpsertScore(ctx, july, testSettings); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	again, _ := store.ScoreFor(ctx, july)
	if again.Score != stored.Score {
		t.Fatalf("score changed on identical input: %d vs %d", again.Score, stored.Score)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 7, 1+d, 0, 0, 0, 0, time.UTC)
	}
	daily := map[time.Time]float64{
		day(0): 100, day(1): 100, day(2): 100, day(3): 100, day(4): 200,
	}
	// mean 120, population sd 40.
	got := coefficientOfVariation(daily)
	want := 40.0 / 120.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := coefficientOfVariation(map[time.Time]float64{}); got != -1 {
		t.Fatalf("empty input should be -1, got %v", got)
	}
	if got := coefficientOfVariation(map[time.Time]float64{day(0): 0}); got != -1 {
		t.Fatalf("non-positive mean should be -1, got %v", got)
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct{ in, out int }{{-10, 0}, {0, 0}, {55, 55}, {100, 100}, {140, 100}}
	for _, tc := range cases {
		if got := clampScore(tc.in); got != tc.out {
			t.Fatalf("%d: expected %d, got %d", tc.in, tc.out, got)
		}
	}
}
