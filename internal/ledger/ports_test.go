package ledger

import (
	"testing"
	"time"

	"moneta/internal/core"
)

func TestRecordQueryMatches(t *testing.T) {
	at := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	r := core.MoneyRecord{
		OccurredAt:     at,
		Kind:           core.KindExpense,
		ApprovalStatus: core.ApprovalApproved,
		CurrencyCode:   "INR",
	}

	cases := []struct {
		name string
		q    RecordQuery
		want bool
	}{
		{"zero query matches all", RecordQuery{}, true},
		{"inside window", RecordQuery{From: at.Add(-time.Hour), To: at.Add(time.Hour)}, true},
		{"from is inclusive", RecordQuery{From: at}, true},
		{"to is exclusive", RecordQuery{To: at}, false},
		{"before window", RecordQuery{From: at.Add(time.Minute)}, false},
		{"currency match", RecordQuery{Currency: "INR"}, true},
		{"currency mismatch", RecordQuery{Currency: "EUR"}, false},
		{"kind mismatch", RecordQuery{Kind: core.KindIncome}, false},
		{"approval mismatch", RecordQuery{Approval: core.ApprovalPending}, false},
		{"all filters", RecordQuery{From: at, To: at.Add(time.Second), Currency: "INR", Kind: core.KindExpense, Approval: core.ApprovalApproved}, true},
	}
	for _, tc := range cases {
		if got := tc.q.Matches(r); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
