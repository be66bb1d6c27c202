// Package ledger defines the record-store capability the engine
// computes over. Adapters live in ledger/memory and storage.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
)

// ErrDuplicateCarryEvent is returned when a carry-forward event with
// the same deterministic id or natural key already exists. Callers must
// surface it, not swallow it: a missed idempotency check risks
// double-crediting a budget or goal.
var ErrDuplicateCarryEvent = errors.New("carry-forward event already recorded")

// RecordQuery selects money records by occurredAt window and optional
// attribute filters. Zero-valued fields match everything.
type RecordQuery struct {
	From     time.Time // inclusive, occurredAt
	To       time.Time // exclusive, occurredAt
	Currency string
	Kind     core.RecordKind
	Approval core.ApprovalStatus
}

// Matches reports whether a record satisfies the query. Shared by the
// memory store and by tests; the SQLite store compiles the same
// predicate into SQL.
func (q RecordQuery) Matches(r core.MoneyRecord) bool {
	if !q.From.IsZero() && r.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !r.OccurredAt.Before(q.To) {
		return false
	}
	if q.Currency != "" && r.CurrencyCode != q.Currency {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Approval != "" && r.ApprovalStatus != q.Approval {
		return false
	}
	return true
}

// Ports for the record store, grouped per entity.
type (
	RecordStore interface {
		CreateRecord(ctx context.Context, r core.MoneyRecord) error
		// ListRecords returns matching records ordered by occurredAt
		// ascending. Discarded records are always excluded.
		ListRecords(ctx context.Context, q RecordQuery) ([]core.MoneyRecord, error)
		UpdateApproval(ctx context.Context, id uuid.UUID, status core.ApprovalStatus) error
	}

	BudgetStore interface {
		// BudgetFor returns nil when no budget exists for the month key.
		BudgetFor(ctx context.Context, monthKey time.Time) (*core.Budget, error)
		UpsertBudget(ctx context.Context, b core.Budget) error
	}

	// CarryLedger is the idempotency ledger for carry-forward events.
	CarryLedger interface {
		CarryEventExists(ctx context.Context, id string) (bool, error)
		// CreateCarryEvent fails with ErrDuplicateCarryEvent when the id
		// or the (from, to, category, destination) natural key exists.
		CreateCarryEvent(ctx context.Context, ev core.CarryForwardEvent) error
	}

	GoalStore interface {
		// GoalByID and GoalByName return nil when absent.
		GoalByID(ctx context.Context, id uuid.UUID) (*core.SavingsGoal, error)
		GoalByName(ctx context.Context, name string) (*core.SavingsGoal, error)
		UpsertGoal(ctx context.Context, g core.SavingsGoal) error
	}

	ScoreStore interface {
		// ScoreFor returns nil when no score is stored for the month key.
		ScoreFor(ctx context.Context, monthKey time.Time) (*core.FinancialScoreRecord, error)
		UpsertScore(ctx context.Context, s core.FinancialScoreRecord) error
	}

	// AuditLog records append-only timeline events. Not analytically
	// load-bearing.
	AuditLog interface {
		AppendBudgetChange(ctx context.Context, ev core.BudgetChangeEvent) error
		AppendGoalAllocation(ctx context.Context, ev core.GoalAllocationEvent) error
	}

	// TemplateStore holds reusable entry templates.
	TemplateStore interface {
		CreateTemplate(ctx context.Context, t core.RecordTemplate) error
		ListTemplates(ctx context.Context) ([]core.RecordTemplate, error)
	}

	// Store is the full capability the engine consumes.
	Store interface {
		RecordStore
		BudgetStore
		CarryLedger
		GoalStore
		ScoreStore
		AuditLog
		TemplateStore
	}
)
