package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
	"moneta/internal/ledger"
)

// Finding kinds.
const (
	FindingDuplicate     FindingKind = "potentialDuplicate"
	FindingOutlier       FindingKind = "outlier"
	FindingMonthlyHealth FindingKind = "monthlyHealth"
)

const (
	// duplicateWindow is the maximum gap between two adjacent entries
	// for them to count as a likely duplicate.
	duplicateWindow = 5 * time.Minute

	// outlierMinSamples is the statistical floor below which a category
	// is skipped entirely.
	outlierMinSamples = 8

	outlierFenceMultiplier = 2.5
	iqrEpsilon             = 1e-9
)

type (
	FindingKind string

	// Finding is a single data-integrity observation. RecordID is set
	// for findings that point at a specific entry.
	Finding struct {
		ID       uuid.UUID
		Kind     FindingKind
		Title    string
		Detail   string
		RecordID *uuid.UUID
	}
)

// IntegrityChecker scans one month's records for likely duplicates and
// statistical outliers. It never mutates the ledger.
type IntegrityChecker struct {
	store ledger.RecordStore
}

func NewIntegrityChecker(store ledger.RecordStore) *IntegrityChecker {
	return &IntegrityChecker{store: store}
}

// RunMonthlyHealthCheck runs both detectors. A clean month yields a
// single synthetic healthy finding so callers can tell "checked, clean"
// from "not checked".
func (c *IntegrityChecker) RunMonthlyHealthCheck(ctx context.Context, monthKey time.Time, currency string) ([]Finding, error) {
	var findings []Finding

	dups, err := c.DetectDuplicates(ctx, monthKey, currency)
	if err != nil {
		return nil, fmt.Errorf("detect duplicates: %w", err)
	}
	findings = append(findings, dups...)

	outliers, err := c.DetectOutliers(ctx, monthKey, currency)
	if err != nil {
		return nil, fmt.Errorf("detect outliers: %w", err)
	}
	findings = append(findings, outliers...)

	if len(findings) == 0 {
		findings = append(findings, Finding{
			ID:     uuid.New(),
			Kind:   FindingMonthlyHealth,
			Title:  "Data looks healthy",
			Detail: "No duplicates or outliers detected for this month.",
		})
	}

	slog.InfoContext(ctx, "Monthly health check complete",
		"month_key", core.FormatMonth(monthKey),
		"findings", len(findings))

	return findings, nil
}

// DetectDuplicates flags the later entry of each adjacent pair with the
// same category, same amount, and occurredAt within the window. Only
// pairs adjacent in occurredAt order are compared, so a chain of three
// identical entries yields two findings.
func (c *IntegrityChecker) DetectDuplicates(ctx context.Context, monthKey time.Time, currency string) ([]Finding, error) {
	expenses, err := c.store.ListRecords(ctx, ledger.RecordQuery{
		From:     monthKey,
		To:       core.NextMonth(monthKey),
		Currency: currency,
		Kind:     core.KindExpense,
	})
	if err != nil {
		return nil, err
	}
	if len(expenses) < 2 {
		return nil, nil
	}

	sort.Slice(expenses, func(i, j int) bool {
		return expenses[i].OccurredAt.Before(expenses[j].OccurredAt)
	})

	var findings []Finding
	for i := 0; i < len(expenses)-1; i++ {
		a, b := expenses[i], expenses[i+1]

		delta := b.OccurredAt.Sub(a.OccurredAt)
		if delta < 0 {
			delta = -delta
		}

		if a.Category == b.Category && a.Amount.Equal(b.Amount) && delta <= duplicateWindow {
			id := b.ID
			findings = append(findings, Finding{
				ID:       uuid.New(),
				Kind:     FindingDuplicate,
				Title:    fmt.Sprintf("Possible duplicate: %s", a.Category),
				Detail:   "Two entries with the same amount within 5 minutes. Review and discard if needed.",
				RecordID: &id,
			})
		}
	}
	return findings, nil
}

// DetectOutliers flags approved expenses strictly above the high IQR
// fence of their category. Categories with fewer than eight entries are
// skipped.
func (c *IntegrityChecker) DetectOutliers(ctx context.Context, monthKey time.Time, currency string) ([]Finding, error) {
	expenses, err := c.store.ListRecords(ctx, ledger.RecordQuery{
		From:     monthKey,
		To:       core.NextMonth(monthKey),
		Currency: currency,
		Kind:     core.KindExpense,
		Approval: core.ApprovalApproved,
	})
	if err != nil {
		return nil, err
	}

	grouped := map[string][]core.MoneyRecord{}
	for _, e := range expenses {
		grouped[e.Category] = append(grouped[e.Category], e)
	}

	var findings []Finding
	for category, items := range grouped {
		if len(items) < outlierMinSamples {
			continue
		}

		values := make([]float64, len(items))
		for i, item := range items {
			values[i] = item.Amount.InexactFloat64()
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		q1 := percentile(sorted, 0.25)
		q3 := percentile(sorted, 0.75)
		iqr := math.Max(iqrEpsilon, q3-q1)
		highFence := q3 + outlierFenceMultiplier*iqr

		for i, v := range values {
			if v > highFence {
				id := items[i].ID
				findings = append(findings, Finding{
					ID:       uuid.New(),
					Kind:     FindingOutlier,
					Title:    fmt.Sprintf("Outlier in %s", category),
					Detail:   fmt.Sprintf("This expense is unusually high compared to your typical %s spending.", category),
					RecordID: &id,
				})
			}
		}
	}
	return findings, nil
}

// percentile computes the linear-interpolation percentile of a sorted
// slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	clamped := math.Max(0, math.Min(1, p))
	idx := clamped * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
