// Package export renders money records in the external data-exchange
// form: amounts as decimal strings, timestamps as epoch seconds. The
// same rows can be appended to a Google Sheet.
package export

import (
	"encoding/json"

	"moneta/internal/core"
)

// RecordExport is the wire form of a MoneyRecord.
type RecordExport struct {
	ID             string `json:"id"`
	CreatedAt      int64  `json:"created_at"`
	OccurredAt     int64  `json:"occurred_at"`
	Kind           string `json:"kind"`
	ApprovalStatus string `json:"approval_status"`
	Amount         string `json:"amount"`
	CurrencyCode   string `json:"currency_code"`
	Title          string `json:"title"`
	Notes          string `json:"notes,omitempty"`
	Category       string `json:"category"`
	PaymentMethod  string `json:"payment_method"`
	EmotionalTag   string `json:"emotional_tag"`
}

// ToExport converts a record to its wire form.
func ToExport(r core.MoneyRecord) RecordExport {
	return RecordExport{
		ID:             r.ID.String(),
		CreatedAt:      r.CreatedAt.Unix(),
		OccurredAt:     r.OccurredAt.Unix(),
		Kind:           string(r.Kind),
		ApprovalStatus: string(r.ApprovalStatus),
		Amount:         r.Amount.String(),
		CurrencyCode:   r.CurrencyCode,
		Title:          r.Title,
		Notes:          r.Notes,
		Category:       r.Category,
		PaymentMethod:  r.PaymentMethod,
		EmotionalTag:   string(r.EmotionalTag),
	}
}

// MarshalRecords renders records as a JSON array in the exchange form.
func MarshalRecords(records []core.MoneyRecord) ([]byte, error) {
	out := make([]RecordExport, len(records))
	for i, r := range records {
		out[i] = ToExport(r)
	}
	return json.Marshal(out)
}
