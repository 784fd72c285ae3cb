package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/port/completion"
	"github.com/taskfleet/taskfleet/internal/worker"
)

// CompletionHandler turns jobs into completion calls and publishes the
// result. One handler serves one agent role's worker.
type CompletionHandler struct {
	provider   completion.Provider
	queue      broker.Broker
	dispatcher *DispatchService
	model      string
	maxTokens  int
}

// NewCompletionHandler creates a handler bound to a default model.
func NewCompletionHandler(provider completion.Provider, queue broker.Broker, dispatcher *DispatchService, model string, maxTokens int) *CompletionHandler {
	return &CompletionHandler{
		provider:   provider,
		queue:      queue,
		dispatcher: dispatcher,
		model:      model,
		maxTokens:  maxTokens,
	}
}

// Process satisfies worker.ProcessFunc. Provider errors are returned
// retryable so the broker redelivers; only an impossible job is
// terminal.
func (h *CompletionHandler) Process(ctx context.Context, job broker.JobPayload, _ broker.Message) error {
	if job.Content == "" {
		return worker.NonRetryable(fmt.Errorf("job %s has no content", job.JobID))
	}

	model := h.model
	if m := job.Parameters["model"]; m != "" {
		model = m
	}

	start := time.Now()
	resp, err := h.provider.Complete(ctx, completion.Request{
		Model:     model,
		Prompt:    job.Content,
		MaxTokens: h.maxTokens,
	})
	if err != nil {
		h.publishResult(ctx, job, broker.JobResultPayload{
			JobID:         job.JobID,
			CorrelationID: job.CorrelationID,
			SessionID:     job.SessionID,
			Role:          job.Role,
			Status:        "failed",
			Error:         err.Error(),
			DurationMS:    time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("completion for job %s: %w", job.JobID, err)
	}

	h.publishResult(ctx, job, broker.JobResultPayload{
		JobID:         job.JobID,
		CorrelationID: job.CorrelationID,
		SessionID:     job.SessionID,
		Role:          job.Role,
		Status:        "completed",
		Output:        resp.Content,
		TokensIn:      resp.TokensIn,
		TokensOut:     resp.TokensOut,
		CostUSD:       resp.CostUSD,
		DurationMS:    time.Since(start).Milliseconds(),
	})

	if h.dispatcher != nil {
		if err := h.dispatcher.Complete(ctx, job.JobID, resp.CostUSD); err != nil {
			slog.Warn("budget settlement failed", "job_id", job.JobID, "error", err)
		}
	}
	return nil
}

func (h *CompletionHandler) publishResult(ctx context.Context, job broker.JobPayload, result broker.JobResultPayload) {
	data, err := json.Marshal(result)
	if err != nil {
		slog.Warn("marshal job result failed", "job_id", job.JobID, "error", err)
		return
	}
	if err := h.queue.Publish(ctx, broker.SubjectResults, data); err != nil {
		slog.Warn("publish job result failed", "job_id", job.JobID, "error", err)
	}
}
