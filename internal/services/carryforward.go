package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

// FallbackGoalName is used when settings carry no savings goal id and no
// goal with this name exists yet.
const FallbackGoalName = "Carry-forward Savings"

// EventPublisher broadcasts engine side effects to the host's
// collaborators (notification scheduling, sync). Optional: a nil
// publisher skips publishing.
type EventPublisher interface {
	PublishCarryApplied(ctx context.Context, ev core.CarryForwardEvent) error
	PublishScoreUpserted(ctx context.Context, rec core.FinancialScoreRecord) error
}

// CarryForward reconciles one month's unused category budgets into the
// next month or into a savings goal, exactly once per
// (from, to, category, destination) tuple.
type CarryForward struct {
	store ledger.Store
	pub   EventPublisher
}

func NewCarryForward(store ledger.Store, pub EventPublisher) *CarryForward {
	return &CarryForward{store: store, pub: pub}
}

// Apply carries unused budget from the month before intoMonth. Calling
// it any number of times yields the same state as calling it once,
// gated by the carry-forward event ledger. Months already reconciled
// are never re-processed, even if the source month's records are edited
// afterward.
//
// Store errors propagate: a failed idempotency-ledger read or write
// must reach the host (spec of the surrounding system), since a missed
// check risks double-crediting.
func (s *CarryForward) Apply(ctx context.Context, intoMonth time.Time, settings core.Settings) error {
	fromMonth := core.PrevMonth(intoMonth)

	fromBudget, err := s.store.BudgetFor(ctx, fromMonth)
	if err != nil {
		return fmt.Errorf("fetch source budget: %w", err)
	}
	if fromBudget == nil {
		return nil
	}

	actuals, err := s.actualSpentByCategory(ctx, fromMonth, settings.DefaultCurrencyCode)
	if err != nil {
		return fmt.Errorf("aggregate actuals: %w", err)
	}

	for category, planned := range fromBudget.CategoryBudgets {
		spent := actuals[category]
		unused := planned.Sub(spent)
		if !unused.IsPositive() {
			continue
		}

		destination := fromBudget.RuleFor(category)
		if destination == core.CarryNone {
			continue
		}

		eventID := core.CarryEventID(fromMonth, intoMonth, category, destination)
		exists, err := s.store.CarryEventExists(ctx, eventID)
		if err != nil {
			return fmt.Errorf("check carry event %s: %w", eventID, err)
		}
		if exists {
			continue
		}

		switch destination {
		case core.CarryNextMonth:
			if err := s.applyToNextMonthBudget(ctx, intoMonth, category, unused); err != nil {
				return fmt.Errorf("apply to next month budget: %w", err)
			}
		case core.CarrySavings:
			if err := s.applyToSavingsGoal(ctx, unused, settings); err != nil {
				return fmt.Errorf("apply to savings goal: %w", err)
			}
		}

		event := core.CarryForwardEvent{
			ID:          eventID,
			FromMonth:   fromMonth,
			ToMonth:     intoMonth,
			Category:    category,
			Destination: destination,
			Amount:      unused,
			AppliedAt:   time.Now(),
		}
		if err := s.store.CreateCarryEvent(ctx, event); err != nil {
			if errors.Is(err, ledger.ErrDuplicateCarryEvent) {
				// Lost the race to another tick for the same tuple; the
				// effect was applied by the winner.
				slog.WarnContext(ctx, "Carry-forward event already recorded", "event_id", eventID)
				continue
			}
			return fmt.Errorf("record carry event %s: %w", eventID, err)
		}

		slog.InfoContext(ctx, "Carry-forward applied",
			"event_id", eventID,
			"category", category,
			"destination", destination,
			"amount", unused.String())

		if s.pub != nil {
			if err := s.pub.PublishCarryApplied(ctx, event); err != nil {
				slog.ErrorContext(ctx, "Failed to publish carry-forward event",
					"event_id", eventID, "error", err)
				// Effect and ledger entry are committed; publishing is
				// best effort.
			}
		}
	}

	return nil
}

func (s *CarryForward) actualSpentByCategory(ctx context.Context, monthKey time.Time, currency string) (map[string]decimal.Decimal, error) {
	records, err := s.store.ListRecords(ctx, ledger.RecordQuery{
		From:     monthKey,
		To:       core.NextMonth(monthKey),
		Currency: currency,
		Kind:     core.KindExpense,
		Approval: core.ApprovalApproved,
	})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		totals[r.Category] = totals[r.Category].Add(r.Amount)
	}
	return totals, nil
}

func (s *CarryForward) applyToNextMonthBudget(ctx context.Context, toMonth time.Time, category string, amount decimal.Decimal) error {
	existing, err := s.store.BudgetFor(ctx, toMonth)
	if err != nil {
		return fmt.Errorf("fetch target budget: %w", err)
	}

	budget := core.NewBudget(toMonth)
	if existing != nil {
		budget = *existing
	}
	budget = budget.WithCategoryBudget(category, amount)

	if err := s.store.UpsertBudget(ctx, budget); err != nil {
		return fmt.Errorf("upsert target budget: %w", err)
	}

	change := core.BudgetChangeEvent{
		ID:        newEventID(),
		MonthKey:  toMonth,
		ChangedAt: time.Now(),
		Summary:   fmt.Sprintf("Carried forward %s into %s", amount.String(), category),
	}
	if err := s.store.AppendBudgetChange(ctx, change); err != nil {
		return fmt.Errorf("append budget change: %w", err)
	}
	return nil
}

func (s *CarryForward) applyToSavingsGoal(ctx context.Context, amount decimal.Decimal, settings core.Settings) error {
	goal, err := s.resolveGoal(ctx, settings)
	if err != nil {
		return err
	}

	goal.CurrentAmount = goal.CurrentAmount.Add(amount)
	if err := s.store.UpsertGoal(ctx, *goal); err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}

	alloc := core.GoalAllocationEvent{
		ID:           newEventID(),
		GoalID:       goal.ID,
		GoalName:     goal.Name,
		Amount:       amount,
		CurrencyCode: settings.DefaultCurrencyCode,
		CreatedAt:    time.Now(),
	}
	if err := s.store.AppendGoalAllocation(ctx, alloc); err != nil {
		return fmt.Errorf("append goal allocation: %w", err)
	}
	return nil
}

// resolveGoal finds the configured carry-forward goal, falling back to
// the well-known goal name, creating it with a zero target if needed.
func (s *CarryForward) resolveGoal(ctx context.Context, settings core.Settings) (*core.SavingsGoal, error) {
	if settings.CarryForwardSavingsGoalID != nil {
		goal, err := s.store.GoalByID(ctx, *settings.CarryForwardSavingsGoalID)
		if err != nil {
			return nil, fmt.Errorf("fetch configured goal: %w", err)
		}
		if goal != nil {
			return goal, nil
		}
	}

	goal, err := s.store.GoalByName(ctx, FallbackGoalName)
	if err != nil {
		return nil, fmt.Errorf("fetch fallback goal: %w", err)
	}
	if goal != nil {
		return goal, nil
	}

	created := core.SavingsGoal{
		ID:            newEventID(),
		Name:          FallbackGoalName,
		TargetAmount:  decimal.Zero,
		CurrentAmount: decimal.Zero,
		CreatedAt:     time.Now(),
	}
	return &created, nil
}
