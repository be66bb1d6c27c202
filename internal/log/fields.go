package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldMonthKey    = "month_key"
	FieldCategory    = "category"
	FieldAmount      = "amount"
	FieldCurrency    = "currency"
	FieldRecordID    = "record_id"
	FieldEventID     = "event_id"
	FieldDestination = "destination"
	FieldScore       = "score"
	FieldFindings    = "findings"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCarry     = "carry_forward"
	ComponentScoring   = "scoring"
	ComponentIntegrity = "integrity"
	ComponentInsights  = "insights"
	ComponentDefaults  = "smart_defaults"
	ComponentExport    = "export"
)
