// Package storage is the SQLite record store behind the engine's
// ledger ports.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const recordColumns = `id, created_at, occurred_at, kind, approval_status, amount,
	currency_code, title, notes, category, payment_method, emotional_tag`

func (r *SQLiteRepository) CreateRecord(ctx context.Context, rec core.MoneyRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO money_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.CreatedAt.Unix(),
		rec.OccurredAt.Unix(),
		string(rec.Kind),
		string(rec.ApprovalStatus),
		rec.Amount.String(),
		rec.CurrencyCode,
		rec.Title,
		rec.Notes,
		rec.Category,
		rec.PaymentMethod,
		string(rec.EmotionalTag),
	)
	if err != nil {
		return fmt.Errorf("insert money record: %w", err)
	}

	slog.InfoContext(ctx, "Money record saved",
		"record_id", rec.ID,
		"kind", rec.Kind,
		"amount", rec.Amount.String(),
		"category", rec.Category)
	return nil
}

// ListRecords compiles the query into SQL. Discarded records are always
// excluded; results come back ordered by occurred_at ascending.
func (r *SQLiteRepository) ListRecords(ctx context.Context, q ledger.RecordQuery) ([]core.MoneyRecord, error) {
	var (
		conds = []string{"approval_status != 'discarded'"}
		args  []any
	)
	if !q.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		conds = append(conds, "occurred_at < ?")
		args = append(args, q.To.Unix())
	}
	if q.Currency != "" {
		conds = append(conds, "currency_code = ?")
		args = append(args, q.Currency)
	}
	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Approval != "" {
		conds = append(conds, "approval_status = ?")
		args = append(args, string(q.Approval))
	}

	query := `SELECT ` + recordColumns + ` FROM money_records WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY occurred_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query money records: %w", err)
	}
	defer rows.Close()

	var out []core.MoneyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate money records: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateApproval(ctx context.Context, id uuid.UUID, status core.ApprovalStatus) error {
	row := r.db.QueryRowContext(ctx,
		`SELECT approval_status FROM money_records WHERE id = ?`, id.String())

	var currentRaw string
	if err := row.Scan(&currentRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record %s not found", id)
		}
		return fmt.Errorf("fetch approval status: %w", err)
	}

	current := core.MoneyRecord{ApprovalStatus: core.ApprovalStatus(currentRaw)}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("approval transition %s -> %s not allowed", currentRaw, status)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE money_records SET approval_status = ? WHERE id = ?`,
		string(status), id.String())
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}

	slog.InfoContext(ctx, "Approval status updated", "record_id", id, "status", status)
	return nil
}

func (r *SQLiteRepository) BudgetFor(ctx context.Context, monthKey time.Time) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, month_key, assigned_income, category_budgets, carry_rules
		FROM budgets WHERE month_key = ?`, monthKey.Unix())

	var (
		idRaw, incomeRaw, budgetsRaw, rulesRaw string
		monthUnix                              int64
	)
	if err := row.Scan(&idRaw, &monthUnix, &incomeRaw, &budgetsRaw, &rulesRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query budget: %w", err)
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse budget id: %w", err)
	}

	budget := core.Budget{
		ID:              id,
		MonthKey:        time.Unix(monthUnix, 0).In(monthKey.Location()),
		AssignedIncome:  core.ParseAmountOrZero(incomeRaw),
		CategoryBudgets: decodeAmountMap(budgetsRaw),
		CarryRules:      decodeRuleMap(rulesRaw),
	}
	return &budget, nil
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	budgetsRaw, err := encodeAmountMap(b.CategoryBudgets)
	if err != nil {
		return fmt.Errorf("encode category budgets: %w", err)
	}
	rulesRaw, err := json.Marshal(b.CarryRules)
	if err != nil {
		return fmt.Errorf("encode carry rules: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, month_key, assigned_income, category_budgets, carry_rules)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (month_key) DO UPDATE SET
			assigned_income = excluded.assigned_income,
			category_budgets = excluded.category_budgets,
			carry_rules = excluded.carry_rules`,
		b.ID.String(), b.MonthKey.Unix(), b.AssignedIncome.String(), string(budgetsRaw), string(rulesRaw))
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CarryEventExists(ctx context.Context, id string) (bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM carry_forward_events WHERE id = ?`, id)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count carry events: %w", err)
	}
	return count > 0, nil
}

func (r *SQLiteRepository) CreateCarryEvent(ctx context.Context, ev core.CarryForwardEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carry_forward_events (id, from_month, to_month, category, destination, amount, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.FromMonth.Unix(), ev.ToMonth.Unix(), ev.Category,
		string(ev.Destination), ev.Amount.String(), ev.AppliedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateCarryEvent
		}
		return fmt.Errorf("insert carry event: %w", err)
	}

	slog.InfoContext(ctx, "Carry-forward event recorded",
		"event_id", ev.ID,
		"amount", ev.Amount.String())
	return nil
}

func (r *SQLiteRepository) GoalByID(ctx context.Context, id uuid.UUID) (*core.SavingsGoal, error) {
	return r.scanGoal(r.db.QueryRowContext(ctx, `
		SELECT id, name, target_amount, current_amount, deadline, created_at
		FROM savings_goals WHERE id = ?`, id.String()))
}

func (r *SQLiteRepository) GoalByName(ctx context.Context, name string) (*core.SavingsGoal, error) {
	return r.scanGoal(r.db.QueryRowContext(ctx, `
		SELECT id, name, target_amount, current_amount, deadline, created_at
		FROM savings_goals WHERE name = ? ORDER BY created_at ASC LIMIT 1`, name))
}

func (r *SQLiteRepository) scanGoal(row *sql.Row) (*core.SavingsGoal, error) {
	var (
		idRaw, name, targetRaw, currentRaw string
		deadline                           sql.NullInt64
		createdUnix                        int64
	)
	if err := row.Scan(&idRaw, &name, &targetRaw, &currentRaw, &deadline, &createdUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query savings goal: %w", err)
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse goal id: %w", err)
	}

	goal := core.SavingsGoal{
		ID:            id,
		Name:          name,
		TargetAmount:  core.ParseAmountOrZero(targetRaw),
		CurrentAmount: core.ParseAmountOrZero(currentRaw),
		CreatedAt:     time.Unix(createdUnix, 0),
	}
	if deadline.Valid {
		t := time.Unix(deadline.Int64, 0)
		goal.Deadline = &t
	}
	return &goal, nil
}

func (r *SQLiteRepository) UpsertGoal(ctx context.Context, g core.SavingsGoal) error {
	var deadline any
	if g.Deadline != nil {
		deadline = g.Deadline.Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO savings_goals (id, name, target_amount, current_amount, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			target_amount = excluded.target_amount,
			current_amount = excluded.current_amount,
			deadline = excluded.deadline`,
		g.ID.String(), g.Name, g.TargetAmount.String(), g.CurrentAmount.String(),
		deadline, g.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert savings goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ScoreFor(ctx context.Context, monthKey time.Time) (*core.FinancialScoreRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT month_key, score, breakdown FROM financial_scores WHERE month_key = ?`,
		monthKey.Unix())

	var (
		monthUnix    int64
		score        int
		breakdownRaw string
	)
	if err := row.Scan(&monthUnix, &score, &breakdownRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query financial score: %w", err)
	}

	breakdown := map[string]int{}
	if err := json.Unmarshal([]byte(breakdownRaw), &breakdown); err != nil {
		// A corrupt breakdown degrades to empty rather than failing the read.
		breakdown = map[string]int{}
	}

	rec := core.FinancialScoreRecord{
		MonthKey:  time.Unix(monthUnix, 0).In(monthKey.Location()),
		Score:     score,
		Breakdown: breakdown,
	}
	return &rec, nil
}

func (r *SQLiteRepository) UpsertScore(ctx context.Context, s core.FinancialScoreRecord) error {
	breakdownRaw, err := json.Marshal(s.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO financial_scores (month_key, score, breakdown)
		VALUES (?, ?, ?)
		ON CONFLICT (month_key) DO UPDATE SET
			score = excluded.score,
			breakdown = excluded.breakdown`,
		s.MonthKey.Unix(), s.Score, string(breakdownRaw))
	if err != nil {
		return fmt.Errorf("upsert financial score: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AppendBudgetChange(ctx context.Context, ev core.BudgetChangeEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_change_events (id, month_key, changed_at, summary)
		VALUES (?, ?, ?, ?)`,
		ev.ID.String(), ev.MonthKey.Unix(), ev.ChangedAt.Unix(), ev.Summary)
	if err != nil {
		return fmt.Errorf("insert budget change event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AppendGoalAllocation(ctx context.Context, ev core.GoalAllocationEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goal_allocation_events (id, goal_id, goal_name, amount, currency_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.GoalID.String(), ev.GoalName, ev.Amount.String(),
		ev.CurrencyCode, ev.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert goal allocation event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.RecordTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO record_templates (id, name, amount, category, payment_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Name, t.Amount.String(), t.Category, t.PaymentMethod, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert record template: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]core.RecordTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, amount, category, payment_method, created_at
		FROM record_templates ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query record templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecordTemplate
	for rows.Next() {
		var (
			idRaw, name, amountRaw, category, payment string
			createdUnix                               int64
		)
		if err := rows.Scan(&idRaw, &name, &amountRaw, &category, &payment, &createdUnix); err != nil {
			return nil, fmt.Errorf("scan record template: %w", err)
		}
		id, err := uuid.Parse(idRaw)
		if err != nil {
			return nil, fmt.Errorf("parse template id: %w", err)
		}
		out = append(out, core.RecordTemplate{
			ID:            id,
			Name:          name,
			Amount:        core.ParseAmountOrZero(amountRaw),
			Category:      category,
			PaymentMethod: payment,
			CreatedAt:     time.Unix(createdUnix, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record templates: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (core.MoneyRecord, error) {
	var (
		idRaw, kindRaw, approvalRaw, amountRaw string
		currency, title, notes                 string
		category, payment, tagRaw              string
		createdUnix, occurredUnix              int64
	)
	err := rows.Scan(&idRaw, &createdUnix, &occurredUnix, &kindRaw, &approvalRaw,
		&amountRaw, &currency, &title, &notes, &category, &payment, &tagRaw)
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("scan money record: %w", err)
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return core.MoneyRecord{}, fmt.Errorf("parse record id: %w", err)
	}

	return core.MoneyRecord{
		ID:             id,
		CreatedAt:      time.Unix(createdUnix, 0),
		OccurredAt:     time.Unix(occurredUnix, 0),
		Kind:           core.RecordKind(kindRaw),
		ApprovalStatus: core.ApprovalStatus(approvalRaw),
		Amount:         core.ParseAmountOrZero(amountRaw),
		CurrencyCode:   currency,
		Title:          title,
		Notes:          notes,
		Category:       category,
		PaymentMethod:  payment,
		EmotionalTag:   core.EmotionalTag(tagRaw),
	}, nil
}

// encodeAmountMap stores amounts as decimal strings so no precision is
// lost in the JSON column.
func encodeAmountMap(m map[string]decimal.Decimal) ([]byte, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return json.Marshal(out)
}

func decodeAmountMap(raw string) map[string]decimal.Decimal {
	encoded := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return map[string]decimal.Decimal{}
	}
	out := make(map[string]decimal.Decimal, len(encoded))
	for k, v := range encoded {
		out[k] = core.ParseAmountOrZero(v)
	}
	return out
}

func decodeRuleMap(raw string) map[string]core.CarryDestination {
	out := map[string]core.CarryDestination{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]core.CarryDestination{}
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
