package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/ledger/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	settings := core.Settings{DefaultCurrencyCode: "INR", FiscalMonthStartDay: 1}
	srv := NewServer(":0", store, settings, time.UTC, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, store
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

func seedApprovedExpense(t *testing.T, store *memory.Store, category string, amount int64, at time.Time) core.MoneyRecord {
	t.Helper()
	r := core.NewMoneyRecord(core.KindExpense, decimal.NewFromInt(amount), "INR", category, category, "Card", at)
	r.ApprovalStatus = core.ApprovalApproved
	if err := store.CreateRecord(context.Background(), r); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return r
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateRecordWithSmartDefaults(t *testing.T) {
	srv, _ := newTestServer(t)

	// No category and no history: the suggester falls back to General/Cash.
	w := doRequest(srv, http.MethodPost, "/api/records", `{"kind":"expense","amount":"150","title":"Lunch"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["category"] != "General" || resp["payment_method"] != "Cash" {
		t.Fatalf("expected suggested defaults, got %v", resp)
	}
	if resp["approval_status"] != "pending" {
		t.Fatalf("expense must start pending, got %v", resp["approval_status"])
	}
	if resp["amount"] != "150" {
		t.Fatalf("amount must round trip as decimal string, got %v", resp["amount"])
	}
}

func TestCreateRecordRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"bad amount", `{"kind":"expense","amount":"abc","title":"x","category":"Food"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"kind":"expense","amount":"-5","title":"x","category":"Food"}`, http.StatusUnprocessableEntity},
		{"bad kind", `{"kind":"transfer","amount":"10","title":"x","category":"Food"}`, http.StatusUnprocessableEntity},
		{"empty title", `{"kind":"expense","amount":"10","title":" ","category":"Food"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		w := doRequest(srv, http.MethodPost, "/api/records", tc.body)
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, w.Code)
		}
	}
}

func TestApprovalTransitions(t *testing.T) {
	srv, store := newTestServer(t)

	r := core.NewMoneyRecord(core.KindExpense, decimal.NewFromInt(50), "INR", "Tea", "Snacks", "Cash", time.Now())
	if err := store.CreateRecord(context.Background(), r); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doRequest(srv, http.MethodPost, "/api/records/"+r.ID.String()+"/approval", `{"status":"approved"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// approved -> discarded is not a legal transition.
	w = doRequest(srv, http.MethodPost, "/api/records/"+r.ID.String()+"/approval", `{"status":"discarded"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodPost, "/api/records/not-a-uuid/approval", `{"status":"approved"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestScoreEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/score?month=2026-07", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upsert, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodPost, "/api/score?month=2026-07", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp scoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Month != "2026-07" {
		t.Fatalf("expected month 2026-07, got %s", resp.Month)
	}
	if resp.Score < 0 || resp.Score > 100 {
		t.Fatalf("score out of range: %d", resp.Score)
	}

	w = doRequest(srv, http.MethodGet, "/api/score?month=2026-07", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after upsert, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/score?month=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad month, got %d", w.Code)
	}
}

func TestCarryForwardEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	budget := core.NewBudget(july).WithCategoryBudget("Food", decimal.NewFromInt(8000))
	_ = store.UpsertBudget(ctx, budget)
	seedApprovedExpense(t, store, "Food", 6000, july.AddDate(0, 0, 9))

	w := doRequest(srv, http.MethodPost, "/api/carry-forward?month=2026-08", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := store.CarryEventCount(); got != 1 {
		t.Fatalf("expected 1 carry event, got %d", got)
	}

	aug := core.NextMonth(july)
	augBudget, _ := store.BudgetFor(ctx, aug)
	if augBudget == nil || augBudget.CategoryBudgets["Food"].String() != "2000" {
		t.Fatalf("expected 2000 carried, got %+v", augBudget)
	}
}

func TestHealthCheckAndInsightsEmptyMonth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/health-check?month=2026-07", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health struct {
		Findings []findingResponse `json:"findings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(health.Findings) != 1 || health.Findings[0].Title != "Data looks healthy" {
		t.Fatalf("expected the healthy finding, got %+v", health.Findings)
	}

	w = doRequest(srv, http.MethodGet, "/api/insights?month=2026-07", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var insights struct {
		Insights []insightResponse `json:"insights"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &insights); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(insights.Insights) != 1 || insights.Insights[0].Title != "Start logging daily" {
		t.Fatalf("expected the start-logging insight, got %+v", insights.Insights)
	}
}

func TestSuggestEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/suggest?amount=150", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["category"] != "General" || resp["payment_method"] != "Cash" {
		t.Fatalf("expected fallback suggestion, got %v", resp)
	}

	w = doRequest(srv, http.MethodGet, "/api/suggest?amount=oops", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExportMonthJSON(t *testing.T) {
	srv, store := newTestServer(t)
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	seedApprovedExpense(t, store, "Food", 100, july.AddDate(0, 0, 5))
	// A record from another month stays out of the export.
	seedApprovedExpense(t, store, "Food", 200, july.AddDate(0, 2, 0))

	w := doRequest(srv, http.MethodGet, "/api/export?month=2026-07", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var records []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["amount"] != "100" {
		t.Fatalf("expected decimal string amount, got %v", records[0]["amount"])
	}

	// Sheets export without a configured client is unavailable.
	w = doRequest(srv, http.MethodGet, "/api/export?month=2026-07&target=sheets", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/templates", `{"name":"Chai","amount":"20","category":"Snacks","payment_method":"Cash"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, http.MethodGet, "/api/templates", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var templates []templateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(templates) != 1 || templates[0].Name != "Chai" || templates[0].Amount != "20" {
		t.Fatalf("unexpected templates %+v", templates)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, http.MethodDelete, "/api/records", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	w = doRequest(srv, http.MethodPost, "/api/export", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
