// Package memory provides an in-process ledger.Store used by tests and
// the dev backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

type Store struct {
	mu        sync.Mutex
	records   []core.MoneyRecord
	budgets   map[int64]core.Budget // keyed by month key unix seconds
	carries   map[string]core.CarryForwardEvent
	goals     []core.SavingsGoal
	scores    map[int64]core.FinancialScoreRecord
	budLog    []core.BudgetChangeEvent
	allocLog  []core.GoalAllocationEvent
	templates []core.RecordTemplate
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		budgets: map[int64]core.Budget{},
		carries: map[string]core.CarryForwardEvent{},
		scores:  map[int64]core.FinancialScoreRecord{},
	}
}

func (s *Store) CreateRecord(_ context.Context, r core.MoneyRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *Store) ListRecords(_ context.Context, q ledger.RecordQuery) ([]core.MoneyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.MoneyRecord
	for _, r := range s.records {
		if r.ApprovalStatus == core.ApprovalDiscarded {
			continue
		}
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) UpdateApproval(_ context.Context, id uuid.UUID, status core.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			if !r.CanTransitionTo(status) {
				return fmt.Errorf("approval transition %s -> %s not allowed", r.ApprovalStatus, status)
			}
			s.records[i].ApprovalStatus = status
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

func (s *Store) BudgetFor(_ context.Context, monthKey time.Time) (*core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.budgets[monthKey.Unix()]; ok {
		out := b
		return &out, nil
	}
	return nil, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.MonthKey.Unix()] = b
	return nil
}

func (s *Store) CarryEventExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.carries[id]
	return ok, nil
}

func (s *Store) CreateCarryEvent(_ context.Context, ev core.CarryForwardEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carries[ev.ID]; ok {
		return ledger.ErrDuplicateCarryEvent
	}
	for _, existing := range s.carries {
		if existing.FromMonth.Equal(ev.FromMonth) && existing.ToMonth.Equal(ev.ToMonth) &&
			existing.Category == ev.Category && existing.Destination == ev.Destination {
			return ledger.ErrDuplicateCarryEvent
		}
	}
	s.carries[ev.ID] = ev
	return nil
}

func (s *Store) GoalByID(_ context.Context, id uuid.UUID) (*core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goals {
		if g.ID == id {
			out := g
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) GoalByName(_ context.Context, name string) (*core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goals {
		if g.Name == name {
			out := g
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) UpsertGoal(_ context.Context, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.goals {
		if existing.ID == g.ID {
			s.goals[i] = g
			return nil
		}
	}
	s.goals = append(s.goals, g)
	return nil
}

func (s *Store) ScoreFor(_ context.Context, monthKey time.Time) (*core.FinancialScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scores[monthKey.Unix()]; ok {
		out := sc
		return &out, nil
	}
	return nil, nil
}

func (s *Store) UpsertScore(_ context.Context, sc core.FinancialScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[sc.MonthKey.Unix()] = sc
	return nil
}

func (s *Store) AppendBudgetChange(_ context.Context, ev core.BudgetChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budLog = append(s.budLog, ev)
	return nil
}

func (s *Store) AppendGoalAllocation(_ context.Context, ev core.GoalAllocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocLog = append(s.allocLog, ev)
	return nil
}

func (s *Store) CreateTemplate(_ context.Context, t core.RecordTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
	return nil
}

func (s *Store) ListTemplates(_ context.Context) ([]core.RecordTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RecordTemplate(nil), s.templates...), nil
}

// CarryEventCount reports the number of recorded carry-forward events.
// Test helper.
func (s *Store) CarryEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carries)
}
