package models

import "time"

type ReceiptJob struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	Action     string    `json:"action"` // "time_in" | "time_out"
	To         string    `json:"to"`
	Name       string    `json:"name"`
	EventName  string    `json:"event_name"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     string    `json:"status,omitempty"`
	Attendance string    `json:"attendance_status,omitempty"`
	Duration   *int      `json:"duration_minutes,omitempty"`
	RetryCount int       `json:"retry_count"`
}

const (
	ReceiptPending    = "pending"
	ReceiptProcessing = "processing"
	ReceiptSent       = "sent"
	ReceiptFailed     = "failed"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type AttendanceUpdate struct {
	EventID string            `json:"event_id"`
	Action  string            `json:"action"`
	Record  *AttendanceRecord `json:"record"`
}

type ScanOutcomeMessage struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Record    *AttendanceRecord `json:"record,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
