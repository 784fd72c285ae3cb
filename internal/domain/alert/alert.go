// Package alert defines the alert publication shape.
package alert

import "time"

// Severity levels for alerts.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Alert is the payload published when a job fails terminally or a
// critical-priority job completes abnormally.
type Alert struct {
	JobID         string         `json:"job_id"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	Severity      string         `json:"severity"`
	Category      string         `json:"category"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Context       map[string]any `json:"context,omitempty"`
	Channels      []string       `json:"channels,omitempty"`
}
