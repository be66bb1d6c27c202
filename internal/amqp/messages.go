package amqp

import (
	"encoding/json"
	"time"

	"moneta/internal/core"
)

// CarryAppliedMessage announces a committed carry-forward application.
// Consumers (notification scheduling, sync) fetch details as needed;
// amounts travel as decimal strings per the export contract.
type CarryAppliedMessage struct {
	EventID     string    `json:"event_id"`
	FromMonth   string    `json:"from_month"` // yyyy-MM
	ToMonth     string    `json:"to_month"`   // yyyy-MM
	Category    string    `json:"category"`
	Destination string    `json:"destination"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// ScoreUpsertedMessage announces a persisted monthly score.
type ScoreUpsertedMessage struct {
	MonthKey  string         `json:"month_key"` // yyyy-MM
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewCarryAppliedMessage builds the wire form of a carry-forward event.
func NewCarryAppliedMessage(ev core.CarryForwardEvent) *CarryAppliedMessage {
	return &CarryAppliedMessage{
		EventID:     ev.ID,
		FromMonth:   core.FormatMonth(ev.FromMonth),
		ToMonth:     core.FormatMonth(ev.ToMonth),
		Category:    ev.Category,
		Destination: string(ev.Destination),
		Amount:      ev.Amount.String(),
		Timestamp:   time.Now(),
	}
}

// NewScoreUpsertedMessage builds the wire form of a score upsert.
func NewScoreUpsertedMessage(rec core.FinancialScoreRecord) *ScoreUpsertedMessage {
	return &ScoreUpsertedMessage{
		MonthKey:  core.FormatMonth(rec.MonthKey),
		Score:     rec.Score,
		Breakdown: rec.Breakdown,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CarryAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSON converts the message to JSON bytes
func (m *ScoreUpsertedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CarryAppliedMessageFromJSON creates a message from JSON bytes
func CarryAppliedMessageFromJSON(data []byte) (*CarryAppliedMessage, error) {
	var msg CarryAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ScoreUpsertedMessageFromJSON creates a message from JSON bytes
func ScoreUpsertedMessageFromJSON(data []byte) (*ScoreUpsertedMessage, error) {
	var msg ScoreUpsertedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
