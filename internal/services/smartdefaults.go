package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

// suggestionLookback bounds the candidate pool for smart defaults.
const suggestionLookback = 45 * 24 * time.Hour

// Suggestion is a proposed category and payment method for a new entry.
type Suggestion struct {
	Category      string
	PaymentMethod string
}

// amountBand is an inclusive amount range considered "similar" to the
// input amount.
type amountBand struct {
	low, high decimal.Decimal
}

func (b amountBand) contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.low) && amount.LessThanOrEqual(b.high)
}

// bandFor maps an amount to its similarity band from a fixed lookup
// table.
func bandFor(amount decimal.Decimal) amountBand {
	v := amount.InexactFloat64()
	switch {
	case v < 100:
		return amountBand{decimal.NewFromInt(0), decimal.NewFromInt(120)}
	case v < 300:
		return amountBand{decimal.NewFromInt(80), decimal.NewFromInt(360)}
	case v < 1000:
		return amountBand{decimal.NewFromInt(240), decimal.NewFromInt(1200)}
	case v < 5000:
		return amountBand{decimal.NewFromInt(800), decimal.NewFromInt(6000)}
	default:
		return amountBand{decimal.NewFromInt(4000), decimal.NewFromInt(2000000)}
	}
}

// DefaultsSuggester proposes entry defaults from recent history.
// Read-only.
type DefaultsSuggester struct {
	store ledger.RecordStore
}

func NewDefaultsSuggester(store ledger.RecordStore) *DefaultsSuggester {
	return &DefaultsSuggester{store: store}
}

// Suggest picks a category and payment method for a candidate entry:
//
//  1. Most recent candidate sharing the input's time-of-day bucket with
//     an amount inside the band; payment method is the most frequent
//     one for that category, falling back to the match's own.
//  2. Otherwise the most frequent category among in-band candidates,
//     payment method most frequent for it, falling back to "Cash".
//  3. Otherwise {General, Cash}.
//
// "Most frequent" ties resolve first-seen-wins over the
// most-recent-first ordering, keeping suggestions deterministic.
func (s *DefaultsSuggester) Suggest(ctx context.Context, amount decimal.Decimal, occurredAt time.Time, currency string) (Suggestion, error) {
	bucket := core.TimeBucketOf(occurredAt)
	band := bandFor(amount)

	candidates, err := s.recentExpenses(ctx, occurredAt, currency)
	if err != nil {
		return Suggestion{}, fmt.Errorf("fetch candidates: %w", err)
	}

	for _, c := range candidates {
		if band.contains(c.Amount) && core.TimeBucketOf(c.OccurredAt) == bucket {
			method := mostFrequentPaymentMethod(candidates, c.Category)
			if method == "" {
				method = c.PaymentMethod
			}
			return Suggestion{Category: c.Category, PaymentMethod: method}, nil
		}
	}

	if category := mostFrequentCategory(candidates, band); category != "" {
		method := mostFrequentPaymentMethod(candidates, category)
		if method == "" {
			method = "Cash"
		}
		return Suggestion{Category: category, PaymentMethod: method}, nil
	}

	return Suggestion{Category: "General", PaymentMethod: "Cash"}, nil
}

// recentExpenses returns matching-currency expenses from the lookback
// window, most recent first.
func (s *DefaultsSuggester) recentExpenses(ctx context.Context, occurredAt time.Time, currency string) ([]core.MoneyRecord, error) {
	records, err := s.store.ListRecords(ctx, ledger.RecordQuery{
		From:     occurredAt.Add(-suggestionLookback),
		Currency: currency,
		Kind:     core.KindExpense,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OccurredAt.After(records[j].OccurredAt)
	})
	return records, nil
}

func mostFrequentCategory(candidates []core.MoneyRecord, band amountBand) string {
	counts := map[string]int{}
	var order []string
	for _, c := range candidates {
		if !band.contains(c.Amount) {
			continue
		}
		if counts[c.Category] == 0 {
			order = append(order, c.Category)
		}
		counts[c.Category]++
	}

	best := ""
	bestCount := 0
	for _, category := range order {
		if counts[category] > bestCount {
			best = category
			bestCount = counts[category]
		}
	}
	return best
}

func mostFrequentPaymentMethod(candidates []core.MoneyRecord, category string) string {
	counts := map[string]int{}
	var order []string
	for _, c := range candidates {
		if c.Category != category {
			continue
		}
		if counts[c.PaymentMethod] == 0 {
			order = append(order, c.PaymentMethod)
		}
		counts[c.PaymentMethod]++
	}

	best := ""
	bestCount := 0
	for _, method := range order {
		if counts[method] > bestCount {
			best = method
			bestCount = counts[method]
		}
	}
	return best
}
