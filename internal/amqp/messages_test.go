package amqp

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

func TestNewCarryAppliedMessage(t *testing.T) {
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	aug := july.AddDate(0, 1, 0)
	ev := core.CarryForwardEvent{
		ID:          core.CarryEventID(july, aug, "Food", core.CarryNextMonth),
		FromMonth:   july,
		ToMonth:     aug,
		Category:    "Food",
		Destination: core.CarryNextMonth,
		Amount:      decimal.RequireFromString("2000.50"),
		AppliedAt:   time.Now(),
	}

	msg := NewCarryAppliedMessage(ev)
	if msg.FromMonth != "2026-07" || msg.ToMonth != "2026-08" {
		t.Fatalf("months must be yyyy-MM: %s %s", msg.FromMonth, msg.ToMonth)
	}
	if msg.Amount != "2000.5" {
		t.Fatalf("amount must be a decimal string, got %q", msg.Amount)
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := CarryAppliedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventID != ev.ID || decoded.Destination != "nextMonth" {
		t.Fatalf("round trip lost fields: %+v", decoded)
	}
}

func TestNewScoreUpsertedMessage(t *testing.T) {
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := core.NewFinancialScoreRecord(july, 80, map[string]int{"Budget adherence": 95})

	msg := NewScoreUpsertedMessage(rec)
	if msg.MonthKey != "2026-07" || msg.Score != 80 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Breakdown["Budget adherence"] != 95 {
		t.Fatalf("breakdown not carried")
	}
}
