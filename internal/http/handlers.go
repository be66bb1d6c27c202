package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
	"moneta/internal/export"
	"moneta/internal/ledger"
	"moneta/internal/log"
	"moneta/internal/services"
)

type createRecordRequest struct {
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currency_code,omitempty"`
	Title         string `json:"title"`
	Notes         string `json:"notes,omitempty"`
	Category      string `json:"category,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	EmotionalTag  string `json:"emotional_tag,omitempty"`
	OccurredAt    int64  `json:"occurred_at,omitempty"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	kind := core.RecordKind(req.Kind)
	if !kind.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid kind")
		return
	}

	currency := strings.TrimSpace(req.CurrencyCode)
	if currency == "" {
		currency = s.settings.DefaultCurrencyCode
	}

	occurredAt := time.Now().In(s.loc)
	if req.OccurredAt > 0 {
		occurredAt = time.Unix(req.OccurredAt, 0).In(s.loc)
	}

	category := strings.TrimSpace(req.Category)
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if category == "" && kind == core.KindExpense {
		suggestion, err := s.suggester.Suggest(r.Context(), amount, occurredAt, currency)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Smart defaults failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "failed to derive defaults")
			return
		}
		category = suggestion.Category
		if paymentMethod == "" {
			paymentMethod = suggestion.PaymentMethod
		}
	}

	record := core.NewMoneyRecord(kind, amount, currency, strings.TrimSpace(req.Title), category, paymentMethod, occurredAt)
	record.Notes = strings.TrimSpace(req.Notes)
	if tag := core.EmotionalTag(req.EmotionalTag); req.EmotionalTag != "" && tag.IsValid() {
		record.EmotionalTag = tag
	}

	if err := record.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.CreateRecord(r.Context(), record); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to create record",
			log.FieldError, err, "title", record.Title, log.FieldCategory, record.Category)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}

	s.invalidateMonth(core.MonthKey(occurredAt, s.settings.FiscalMonthStartDay, s.loc))

	s.logger.InfoContext(r.Context(), "Record created",
		log.FieldRecordID, record.ID.String(),
		"kind", string(record.Kind),
		log.FieldCategory, record.Category,
		log.FieldAmount, record.Amount.String())

	writeJSON(w, http.StatusCreated, export.ToExport(record))
}

type approvalRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateApproval(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status := core.ApprovalStatus(req.Status)
	if !status.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid approval status")
		return
	}

	if err := s.store.UpdateApproval(r.Context(), id, status); err != nil {
		s.logger.WarnContext(r.Context(), "Approval update rejected",
			log.FieldRecordID, id.String(), "status", string(status), log.FieldError, err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": string(status),
	})
}

func (s *Server) handleCarryForward(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	monthKey, ok := s.monthKeyParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid month, want yyyy-MM")
		return
	}

	if err := s.carry.Apply(r.Context(), monthKey, s.settings); err != nil {
		s.logger.ErrorContext(r.Context(), "Carry-forward failed",
			log.FieldMonthKey, core.FormatMonth(monthKey), log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "carry-forward failed")
		return
	}

	s.invalidateMonth(monthKey)

	writeJSON(w, http.StatusOK, map[string]string{"month": core.FormatMonth(monthKey)})
}

type scoreResponse struct {
	Month     string         `json:"month"`
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleComputeScore(w, r)
	case http.MethodGet:
		s.handleGetScore(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleComputeScore(w http.ResponseWriter, r *http.Request) {
	monthKey, ok := s.monthKeyParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid month, want yyyy-MM")
		return
	}

	if err := s.scorer.UpsertScore(r.Context(), monthKey, s.settings); err != nil {
		s.logger.ErrorContext(r.Context(), "Score upsert failed",
			log.FieldMonthKey, core.FormatMonth(monthKey), log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "score computation failed")
		return
	}

	stored, err := s.store.ScoreFor(r.Context(), monthKey)
	if err != nil || stored == nil {
		writeError(w, http.StatusInternalServerError, "score not available after upsert")
		return
	}

	s.scoreCache.Delete(core.FormatMonth(monthKey))

	writeJSON(w, http.StatusOK, scoreResponse{
		Month:     core.FormatMonth(monthKey),
		Score:     stored.Score,
		Breakdown: stored.Breakdown,
	})
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	monthKey, ok := s.monthKeyParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid month, want yyyy-MM")
		return
	}
	cacheKey := core.FormatMonth(monthKey)

	if cached, ok := s.scoreCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, scoreResponse{
			Month:     cacheKey,
			Score:     cached.Score,
			Breakdown: cached.Breakdown,
		})
		return
	}

	stored, err := s.store.ScoreFor(r.Context(), monthKey)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Score lookup failed", log.FieldMonthKey, cacheKey, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "score lookup failed")
		return
	}
	if stored == nil {
		writeError(w, http.StatusNotFound, "no score stored for month")
		return
	}

	s.scoreCache.Set(cacheKey, services.ScoreResult{Score: stored.Score, Breakdown: stored.Breakdown})

	writeJSON(w, http.StatusOK, scoreResponse{
		Month:     cacheKey,
		Score:     stored.Score,
		Breakdown: stored.Breakdown,
	})
}

type findingResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	RecordID string `json:"record_id,omitempty"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	report, ok := s.monthlyReport(w, r)
	if !ok {
		return
	}

	out := make([]findingResponse, 0, len(report.Findings))
	for _, f := range report.Findings {
		fr := findingResponse{
			ID:     f.ID.String(),
			Kind:   string(f.Kind),
			Title:  f.Title,
			Detail: f.Detail,
		}
		if f.RecordID != nil {
			fr.RecordID = f.RecordID.String()
		}
		out = append(out, fr)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":    core.FormatMonth(report.MonthKey),
		"findings": out,
	})
}

type insightResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	report, ok := s.monthlyReport(w, r)
	if !ok {
		return
	}

	out := make([]insightResponse, 0, len(report.Insights))
	for _, in := range report.Insights {
		out = append(out, insightResponse{ID: in.ID.String(), Title: in.Title, Detail: in.Detail})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":    core.FormatMonth(report.MonthKey),
		"insights": out,
	})
}

// monthlyReport fetches the cached report for the requested month,
// computing and caching it on miss. Writes the error response itself.
func (s *Server) monthlyReport(w http.ResponseWriter, r *http.Request) (services.MonthlyReport, bool) {
	monthKey, ok := s.monthKeyParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid month, want yyyy-MM")
		return services.MonthlyReport{}, false
	}
	cacheKey := core.FormatMonth(monthKey)

	if cached, ok := s.reportCache.Get(cacheKey); ok {
		return cached, true
	}

	report, err := s.processor.Report(r.Context(), monthKey, s.settings.DefaultCurrencyCode)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Monthly report failed", log.FieldMonthKey, cacheKey, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "monthly report failed")
		return services.MonthlyReport{}, false
	}

	s.reportCache.Set(cacheKey, report)
	return report, true
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	amount, err := core.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	at := time.Now().In(s.loc)
	if v := strings.TrimSpace(r.URL.Query().Get("at")); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at, want epoch seconds")
			return
		}
		at = time.Unix(epoch, 0).In(s.loc)
	}

	suggestion, err := s.suggester.Suggest(r.Context(), amount, at, s.settings.DefaultCurrencyCode)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Suggestion failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "suggestion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"category":       suggestion.Category,
		"payment_method": suggestion.PaymentMethod,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	monthKey, ok := s.monthKeyParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid month, want yyyy-MM")
		return
	}

	records, err := s.store.ListRecords(r.Context(), ledger.RecordQuery{
		From: monthKey,
		To:   core.NextMonth(monthKey),
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Export query failed",
			log.FieldMonthKey, core.FormatMonth(monthKey), log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	if r.URL.Query().Get("target") == "sheets" {
		if s.exporter == nil {
			writeError(w, http.StatusServiceUnavailable, "sheets export not configured")
			return
		}
		if err := s.exporter.AppendRecords(r.Context(), records); err != nil {
			s.logger.ErrorContext(r.Context(), "Sheets export failed",
				log.FieldMonthKey, core.FormatMonth(monthKey), log.FieldError, err)
			writeError(w, http.StatusBadGateway, "sheets export failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"month":    core.FormatMonth(monthKey),
			"exported": len(records),
		})
		return
	}

	body, err := export.MarshalRecords(records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type createTemplateRequest struct {
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	PaymentMethod string `json:"payment_method"`
}

type templateResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	PaymentMethod string `json:"payment_method"`
	CreatedAt     int64  `json:"created_at"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		templates, err := s.store.ListTemplates(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list templates")
			return
		}
		out := make([]templateResponse, 0, len(templates))
		for _, t := range templates {
			out = append(out, templateResponse{
				ID:            t.ID.String(),
				Name:          t.Name,
				Amount:        t.Amount.String(),
				Category:      t.Category,
				PaymentMethod: t.PaymentMethod,
				CreatedAt:     t.CreatedAt.Unix(),
			})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req createTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		amount, err := core.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid amount")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Category) == "" {
			writeError(w, http.StatusUnprocessableEntity, "name and category are required")
			return
		}
		tmpl := core.RecordTemplate{
			ID:            uuid.New(),
			Name:          strings.TrimSpace(req.Name),
			Amount:        amount,
			Category:      strings.TrimSpace(req.Category),
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			CreatedAt:     time.Now(),
		}
		if err := s.store.CreateTemplate(r.Context(), tmpl); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create template")
			return
		}
		writeJSON(w, http.StatusCreated, templateResponse{
			ID:            tmpl.ID.String(),
			Name:          tmpl.Name,
			Amount:        tmpl.Amount.String(),
			Category:      tmpl.Category,
			PaymentMethod: tmpl.PaymentMethod,
			CreatedAt:     tmpl.CreatedAt.Unix(),
		})

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
