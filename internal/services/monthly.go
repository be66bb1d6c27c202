// Package services implements the analytics and reconciliation engine:
// carry-forward, health scoring, integrity checks, insights, and smart
// defaults over a ledger store.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

// MonthlyProcessor drives the month tick: carry-forward into the
// current bucket, then score it, as one logical sequence so the score
// reflects the post-carry-forward budget state. The host serializes
// ticks for the same month; ticks for independent months are safe to
// run concurrently.
type MonthlyProcessor struct {
	carry     *CarryForward
	scorer    *HealthScorer
	integrity *IntegrityChecker
	insights  *InsightsGenerator
}

func NewMonthlyProcessor(store ledger.Store, policy ScorePolicy, pub EventPublisher) *MonthlyProcessor {
	return &MonthlyProcessor{
		carry:     NewCarryForward(store, pub),
		scorer:    NewHealthScorer(store, policy, pub),
		integrity: NewIntegrityChecker(store),
		insights:  NewInsightsGenerator(store),
	}
}

// RunMonthTick reconciles and scores the month bucket containing now.
func (p *MonthlyProcessor) RunMonthTick(ctx context.Context, now time.Time, settings core.Settings, loc *time.Location) error {
	monthKey := core.MonthKey(now, settings.FiscalMonthStartDay, loc)

	if err := p.carry.Apply(ctx, monthKey, settings); err != nil {
		return fmt.Errorf("carry forward: %w", err)
	}
	if err := p.scorer.UpsertScore(ctx, monthKey, settings); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}

	slog.InfoContext(ctx, "Month tick complete", "month_key", core.FormatMonth(monthKey))
	return nil
}

// MonthlyReport bundles the read-only analytics for one month.
type MonthlyReport struct {
	MonthKey time.Time
	Findings []Finding
	Insights []Insight
}

// Report runs the integrity check and the insights rules. Both are
// side-effect free, so they fan out concurrently.
func (p *MonthlyProcessor) Report(ctx context.Context, monthKey time.Time, currency string) (MonthlyReport, error) {
	report := MonthlyReport{MonthKey: monthKey}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		findings, err := p.integrity.RunMonthlyHealthCheck(gctx, monthKey, currency)
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		report.Findings = findings
		return nil
	})
	g.Go(func() error {
		insights, err := p.insights.Generate(gctx, monthKey, currency)
		if err != nil {
			return fmt.Errorf("insights: %w", err)
		}
		report.Insights = insights
		return nil
	})

	if err := g.Wait(); err != nil {
		return MonthlyReport{}, err
	}
	return report, nil
}

func newEventID() uuid.UUID {
	return uuid.New()
}
