package model

import (
	"time"
)

// AuditLog is one complete record of a gateway operation.
type AuditLog struct {
	ID        string `json:"id" gorm:"primaryKey"` // request ID (UUID)
	Exchange  string `json:"exchange" gorm:"index"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	RequestBody   string `json:"request_body"` // redacted
	RequestHeader string `json:"request_header"`

	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Business context filled in by handlers/services (action, order id,
	// policy reject reason, upstream error detail).
	Context map[string]any `json:"context" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
