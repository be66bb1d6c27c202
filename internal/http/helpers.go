package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moneta/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// monthKeyParam resolves the ?month=yyyy-MM query parameter into a
// month bucket key, defaulting to the bucket containing now.
func (s *Server) monthKeyParam(r *http.Request) (time.Time, bool) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.MonthKey(time.Now().In(s.loc), s.settings.FiscalMonthStartDay, s.loc), true
	}
	t, err := time.ParseInLocation("2006-01", v, s.loc)
	if err != nil {
		return time.Time{}, false
	}
	// The label names the bucket, so the key is built directly rather
	// than bucketing a day-1 timestamp (which would shift backwards for
	// fiscal start days after the 1st).
	day := s.settings.FiscalMonthStartDay
	if day < 1 {
		day = 1
	}
	if day > 28 {
		day = 28
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, s.loc), true
}
