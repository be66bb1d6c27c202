package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	KindExpense RecordKind = "expense"
	KindIncome  RecordKind = "income"
)

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalDiscarded ApprovalStatus = "discarded"
)

const (
	TagNone     EmotionalTag = "none"
	TagNeutral  EmotionalTag = "neutral"
	TagStressed EmotionalTag = "stressed"
	TagHappy    EmotionalTag = "happy"
)

const (
	CarryNextMonth CarryDestination = "nextMonth"
	CarrySavings   CarryDestination = "savings"
	CarryNone      CarryDestination = "none"
)

type (
	RecordKind       string
	ApprovalStatus   string
	EmotionalTag     string
	CarryDestination string

	// MoneyRecord is a single money movement. All bucketing and range
	// queries key off OccurredAt, never CreatedAt.
	MoneyRecord struct {
		ID             uuid.UUID
		CreatedAt      time.Time
		OccurredAt     time.Time
		Kind           RecordKind
		ApprovalStatus ApprovalStatus
		Amount         decimal.Decimal
		CurrencyCode   string
		Title          string
		Notes          string
		Category       string
		PaymentMethod  string
		EmotionalTag   EmotionalTag
	}

	// Budget holds one month bucket's planned amounts and carry rules.
	// It is a value object: mutations go through the With* copy methods
	// so a stored Budget is never edited in place.
	Budget struct {
		ID              uuid.UUID
		MonthKey        time.Time
		AssignedIncome  decimal.Decimal
		CategoryBudgets map[string]decimal.Decimal
		CarryRules      map[string]CarryDestination
	}

	// CarryForwardEvent is an idempotency ledger entry. Its deterministic
	// ID is the sole gate keeping a carry-forward from applying twice.
	// Immutable once created.
	CarryForwardEvent struct {
		ID          string
		FromMonth   time.Time
		ToMonth     time.Time
		Category    string
		Destination CarryDestination
		Amount      decimal.Decimal
		AppliedAt   time.Time
	}

	// FinancialScoreRecord is the persisted composite score for a month,
	// upserted so there is exactly one row per month key.
	FinancialScoreRecord struct {
		MonthKey  time.Time
		Score     int
		Breakdown map[string]int
	}

	SavingsGoal struct {
		ID            uuid.UUID
		Name          string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		Deadline      *time.Time
		CreatedAt     time.Time
	}

	// BudgetChangeEvent and GoalAllocationEvent are append-only audit
	// entries used for timeline display.
	BudgetChangeEvent struct {
		ID        uuid.UUID
		MonthKey  time.Time
		ChangedAt time.Time
		Summary   string
	}

	GoalAllocationEvent struct {
		ID           uuid.UUID
		GoalID       uuid.UUID
		GoalName     string
		Amount       decimal.Decimal
		CurrencyCode string
		CreatedAt    time.Time
	}

	// RecordTemplate pre-fills a pending expense entry.
	RecordTemplate struct {
		ID            uuid.UUID
		Name          string
		Amount        decimal.Decimal
		Category      string
		PaymentMethod string
		CreatedAt     time.Time
	}

	// Settings is the engine-facing slice of app configuration.
	Settings struct {
		DefaultCurrencyCode       string
		FiscalMonthStartDay       int
		ZeroBasedBudgetEnabled    bool
		CarryForwardSavingsGoalID *uuid.UUID
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid record kind")
	ErrInvalidApproval = errors.New("invalid approval status")
	ErrEmptyTitle      = errors.New("empty title")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyCurrency   = errors.New("empty currency code")
)

func (k RecordKind) IsValid() bool {
	return k == KindExpense || k == KindIncome
}

func (s ApprovalStatus) IsValid() bool {
	return s == ApprovalPending || s == ApprovalApproved || s == ApprovalDiscarded
}

func (t EmotionalTag) IsValid() bool {
	switch t {
	case TagNone, TagNeutral, TagStressed, TagHappy:
		return true
	}
	return false
}

func (d CarryDestination) IsValid() bool {
	switch d {
	case CarryNextMonth, CarrySavings, CarryNone:
		return true
	}
	return false
}

// NewMoneyRecord creates a record with the lifecycle defaults: expenses
// start pending, income starts approved.
func NewMoneyRecord(kind RecordKind, amount decimal.Decimal, currency, title, category, paymentMethod string, occurredAt time.Time) MoneyRecord {
	approval := ApprovalPending
	if kind == KindIncome {
		approval = ApprovalApproved
	}
	return MoneyRecord{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		OccurredAt:     occurredAt,
		Kind:           kind,
		ApprovalStatus: approval,
		Amount:         amount,
		CurrencyCode:   currency,
		Title:          title,
		Category:       category,
		PaymentMethod:  paymentMethod,
		EmotionalTag:   TagNone,
	}
}

func (r MoneyRecord) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !r.ApprovalStatus.IsValid() {
		return ErrInvalidApproval
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(r.CurrencyCode) == "" {
		return ErrEmptyCurrency
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// CanTransitionTo reports whether an approval-status change is allowed:
// pending→approved, pending→discarded, approved↔pending.
func (r MoneyRecord) CanTransitionTo(next ApprovalStatus) bool {
	switch r.ApprovalStatus {
	case ApprovalPending:
		return next == ApprovalApproved || next == ApprovalDiscarded
	case ApprovalApproved:
		return next == ApprovalPending
	}
	return false
}

// NewBudget creates an empty budget for a month bucket.
func NewBudget(monthKey time.Time) Budget {
	return Budget{
		ID:              uuid.New(),
		MonthKey:        monthKey,
		AssignedIncome:  decimal.Zero,
		CategoryBudgets: map[string]decimal.Decimal{},
		CarryRules:      map[string]CarryDestination{},
	}
}

// WithCategoryBudget returns a copy with the planned amount for a
// category added to any existing amount.
func (b Budget) WithCategoryBudget(category string, amount decimal.Decimal) Budget {
	out := b.clone()
	out.CategoryBudgets[category] = out.CategoryBudgets[category].Add(amount)
	return out
}

// WithCarryRule returns a copy with the carry destination set for a category.
func (b Budget) WithCarryRule(category string, dest CarryDestination) Budget {
	out := b.clone()
	out.CarryRules[category] = dest
	return out
}

// RuleFor resolves the carry destination for a category. An absent rule
// defaults to nextMonth.
func (b Budget) RuleFor(category string) CarryDestination {
	if dest, ok := b.CarryRules[category]; ok {
		return dest
	}
	return CarryNextMonth
}

// PlannedTotal sums all category budgets.
func (b Budget) PlannedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, amt := range b.CategoryBudgets {
		total = total.Add(amt)
	}
	return total
}

func (b Budget) clone() Budget {
	out := b
	out.CategoryBudgets = make(map[string]decimal.Decimal, len(b.CategoryBudgets))
	for k, v := range b.CategoryBudgets {
		out.CategoryBudgets[k] = v
	}
	out.CarryRules = make(map[string]CarryDestination, len(b.CarryRules))
	for k, v := range b.CarryRules {
		out.CarryRules[k] = v
	}
	return out
}

// CarryEventID builds the deterministic idempotency key for a
// carry-forward application: months as yyyy-MM, category lowercased with
// spaces replaced by hyphens.
func CarryEventID(from, to time.Time, category string, dest CarryDestination) string {
	cat := strings.ReplaceAll(strings.ToLower(category), " ", "-")
	return "cf_" + FormatMonth(from) + "_" + FormatMonth(to) + "_" + cat + "_" + string(dest)
}

// NewFinancialScoreRecord clamps the score into [0,100].
func NewFinancialScoreRecord(monthKey time.Time, score int, breakdown map[string]int) FinancialScoreRecord {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return FinancialScoreRecord{MonthKey: monthKey, Score: score, Breakdown: breakdown}
}

// Progress reports goal completion in [0,1]. A zero target is 0.
func (g SavingsGoal) Progress() float64 {
	if g.TargetAmount.IsZero() {
		return 0
	}
	p, _ := g.CurrentAmount.Div(g.TargetAmount).Float64()
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Materialize creates a pending expense record from the template.
func (t RecordTemplate) Materialize(currency string, occurredAt time.Time) MoneyRecord {
	return NewMoneyRecord(KindExpense, t.Amount, currency, t.Name, t.Category, t.PaymentMethod, occurredAt)
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.DefaultCurrencyCode) == "" {
		return ErrEmptyCurrency
	}
	if s.FiscalMonthStartDay < 1 || s.FiscalMonthStartDay > 28 {
		return errors.New("fiscal month start day must be between 1 and 28")
	}
	return nil
}
