package broker

// Priority orders job handling and alerting urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// JobPayload is the wire schema for jobs.{role} messages.
type JobPayload struct {
	JobID         string            `json:"job_id"`
	CorrelationID string            `json:"correlation_id"`
	SessionID     string            `json:"session_id"`
	Role          string            `json:"role"`
	Priority      Priority          `json:"priority"`
	Intent        string            `json:"intent"`
	Content       string            `json:"content"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	ReservedUSD   float64           `json:"reserved_usd"`
}

// JobResultPayload is the wire schema for jobs.results messages.
type JobResultPayload struct {
	JobID         string  `json:"job_id"`
	CorrelationID string  `json:"correlation_id"`
	SessionID     string  `json:"session_id"`
	Role          string  `json:"role"`
	Status        string  `json:"status"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	TokensIn      int     `json:"tokens_in"`
	TokensOut     int     `json:"tokens_out"`
	CostUSD       float64 `json:"cost_usd"`
	DurationMS    int64   `json:"duration_ms"`
}
