package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

func TestToExportExchangeForm(t *testing.T) {
	at := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	r := core.MoneyRecord{
		ID:             uuid.New(),
		CreatedAt:      at,
		OccurredAt:     at.Add(time.Hour),
		Kind:           core.KindExpense,
		ApprovalStatus: core.ApprovalApproved,
		Amount:         decimal.RequireFromString("123.45"),
		CurrencyCode:   "INR",
		Title:          "Groceries",
		Category:       "Food",
		PaymentMethod:  "UPI",
		EmotionalTag:   core.TagNeutral,
	}

	e := ToExport(r)
	if e.Amount != "123.45" {
		t.Fatalf("amount must be a decimal string, got %q", e.Amount)
	}
	if e.CreatedAt != at.Unix() || e.OccurredAt != at.Add(time.Hour).Unix() {
		t.Fatalf("timestamps must be epoch seconds: %d %d", e.CreatedAt, e.OccurredAt)
	}
	if e.ID != r.ID.String() || e.Kind != "expense" || e.ApprovalStatus != "approved" {
		t.Fatalf("unexpected identity fields: %+v", e)
	}
}

func TestMarshalRecords(t *testing.T) {
	at := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	records := []core.MoneyRecord{
		core.NewMoneyRecord(core.KindExpense, decimal.NewFromInt(10), "INR", "Tea", "Snacks", "Cash", at),
	}

	body, err := MarshalRecords(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(decoded))
	}
	if decoded[0]["amount"] != "10" {
		t.Fatalf("expected amount \"10\", got %v", decoded[0]["amount"])
	}
	if _, ok := decoded[0]["occurred_at"].(float64); !ok {
		t.Fatalf("occurred_at must be numeric epoch seconds")
	}
	// Empty notes are omitted.
	if _, ok := decoded[0]["notes"]; ok {
		t.Fatalf("empty notes should be omitted")
	}
}

func TestMarshalRecordsEmpty(t *testing.T) {
	body, err := MarshalRecords(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}
