// Package dispatch defines the task payload and routing decision types.
package dispatch

import "github.com/taskfleet/taskfleet/internal/domain/agent"

// Attachment is a binary artifact carried alongside a task.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URI      string `json:"uri,omitempty"`
}

// IsImage reports whether the attachment carries image content.
func (a Attachment) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}

// TaskPayload is an incoming task request. It is immutable once routed.
type TaskPayload struct {
	Intent      string            `json:"intent"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// HasImageAttachment reports whether any attachment is an image.
func (p TaskPayload) HasImageAttachment() bool {
	for _, a := range p.Attachments {
		if a.IsImage() {
			return true
		}
	}
	return false
}

// Decision is the output of intent classification. Produced once per
// payload and never mutated afterwards.
type Decision struct {
	SelectedAgent     agent.Role   `json:"selected_agent"`
	Confidence        float64      `json:"confidence"`
	Reasoning         string       `json:"reasoning"`
	Alternatives      []agent.Role `json:"alternatives"`
	RequiresProofGate bool         `json:"requires_proof_gate"`
	EstimatedTimeMS   int64        `json:"estimated_time_ms"`
}
