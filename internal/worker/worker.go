// Package worker implements the generic polling message consumer.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	fleetotel "github.com/taskfleet/taskfleet/internal/adapter/otel"
	"github.com/taskfleet/taskfleet/internal/domain/alert"
	"github.com/taskfleet/taskfleet/internal/logger"
	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/resilience"
)

// ProcessFunc handles one job. Returning an error wrapped with
// NonRetryable acknowledges the message; any other error leaves it for
// broker redelivery.
type ProcessFunc func(ctx context.Context, job broker.JobPayload, msg broker.Message) error

// AlertSink receives alerts for terminal and critical job failures.
type AlertSink interface {
	Publish(ctx context.Context, a alert.Alert) error
}

// State is the worker lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

// Config holds one worker's settings.
type Config struct {
	Name                string
	Subscription        string
	CircuitID           string
	MaxConcurrency      int
	PollInterval        time.Duration
	LeaseExtendInterval time.Duration
	LeaseSeconds        int
	DrainTimeout        time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LeaseExtendInterval <= 0 {
		c.LeaseExtendInterval = 15 * time.Second
	}
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = 60
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.CircuitID == "" {
		c.CircuitID = "worker:" + c.Name
	}
}

// lease is the ephemeral per-message state for one in-flight job.
// It exists only between message receipt and ack/nack.
type lease struct {
	ackID      string
	jobID      string
	receivedAt time.Time
}

// Status is the externally visible worker state.
type Status struct {
	Name      string             `json:"name"`
	State     State              `json:"state"`
	IsRunning bool               `json:"is_running"`
	Circuit   resilience.Circuit `json:"circuit"`
	InFlight  int                `json:"in_flight"`
}

// Worker polls a subscription and dispatches messages to an injected
// ProcessFunc, bounding concurrency and extending message leases while
// handlers run.
type Worker struct {
	cfg     Config
	queue   broker.Broker
	breaker *resilience.Breaker
	process ProcessFunc
	alerts  AlertSink          // optional
	instr   *fleetotel.Metrics // optional

	metrics Metrics

	mu       sync.Mutex
	state    State
	inflight map[string]lease
	stopCh   chan struct{}
	loopWG   sync.WaitGroup
}

// New creates a worker. The alert sink and instruments may be nil.
func New(cfg Config, queue broker.Broker, breaker *resilience.Breaker, process ProcessFunc) *Worker {
	cfg.applyDefaults()
	return &Worker{
		cfg:      cfg,
		queue:    queue,
		breaker:  breaker,
		process:  process,
		state:    StateStopped,
		inflight: make(map[string]lease),
	}
}

// SetAlertSink attaches an alert sink for failure publications.
func (w *Worker) SetAlertSink(s AlertSink) { w.alerts = s }

// SetInstruments attaches OpenTelemetry instruments.
func (w *Worker) SetInstruments(m *fleetotel.Metrics) { w.instr = m }

// Name returns the worker name.
func (w *Worker) Name() string { return w.cfg.Name }

// Start transitions the worker to running and begins polling. It is a
// no-op when the worker is already running. If the owning circuit is
// open the worker logs and stays stopped; the condition is visible
// through Status.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.state != StateStopped {
		w.mu.Unlock()
		return
	}
	if !w.breaker.Allow(w.cfg.CircuitID) {
		w.mu.Unlock()
		slog.Warn("worker not started: circuit open",
			"worker", w.cfg.Name, "circuit", w.cfg.CircuitID)
		return
	}
	w.state = StateStarting
	w.stopCh = make(chan struct{})
	w.state = StateRunning
	stopCh := w.stopCh
	w.mu.Unlock()

	w.loopWG.Add(1)
	go w.loop(ctx, stopCh)

	slog.Info("worker started",
		"worker", w.cfg.Name,
		"subscription", w.cfg.Subscription,
		"max_concurrency", w.cfg.MaxConcurrency,
	)
}

func (w *Worker) loop(ctx context.Context, stopCh chan struct{}) {
	defer w.loopWG.Done()

	w.poll(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll pulls up to the available headroom and dispatches each message
// without awaiting completion.
func (w *Worker) poll(ctx context.Context) {
	if !w.breaker.Allow(w.cfg.CircuitID) {
		slog.Debug("poll skipped: circuit open", "worker", w.cfg.Name, "circuit", w.cfg.CircuitID)
		return
	}

	available := w.cfg.MaxConcurrency - w.inflightCount()
	if available <= 0 {
		return
	}

	msgs, err := w.queue.Pull(ctx, w.cfg.Subscription, available)
	if err != nil {
		w.breaker.ReportError(w.cfg.CircuitID, err)
		slog.Warn("poll failed", "worker", w.cfg.Name, "error", err)
		return
	}

	for _, m := range msgs {
		// Register before dispatch so Stop's drain sees the job.
		w.addLease(m.AckID)
		go w.processMessage(ctx, m)
	}
}

func (w *Worker) processMessage(ctx context.Context, m broker.Message) {
	start := time.Now()

	hbCtx, cancelHB := context.WithCancel(ctx)
	go w.extendLease(hbCtx, m.AckID)

	var succeeded, retried bool
	defer func() {
		cancelHB()
		w.removeLease(m.AckID)
		w.metrics.record(succeeded, retried, time.Since(start))
		w.instrument(ctx, succeeded, time.Since(start))
	}()

	var job broker.JobPayload
	if err := json.Unmarshal(m.Data, &job); err != nil {
		// Malformed payloads can never succeed on redelivery.
		w.breaker.ReportError(w.cfg.CircuitID, err)
		w.ack(ctx, m.AckID)
		w.publishAlert(ctx, job, m, fmt.Errorf("decode job payload: %w", err), time.Since(start))
		return
	}
	w.setLeaseJob(m.AckID, job.JobID)

	err := w.process(logger.WithCorrelationID(ctx, job.CorrelationID), job, m)
	if err == nil {
		w.ack(ctx, m.AckID)
		w.breaker.ReportSuccess(w.cfg.CircuitID)
		succeeded = true
		return
	}

	w.breaker.ReportError(w.cfg.CircuitID, err)

	if IsNonRetryable(err) {
		// Ack so the broker never redelivers a terminal failure.
		w.ack(ctx, m.AckID)
	} else {
		// Leave unacked; broker redelivery or dead-letter takes over.
		retried = true
	}

	if IsNonRetryable(err) || job.Priority == broker.PriorityCritical {
		w.publishAlert(ctx, job, m, err, time.Since(start))
	}

	slog.Error("job failed",
		"worker", w.cfg.Name,
		"job_id", job.JobID,
		"correlation_id", job.CorrelationID,
		"retryable", !IsNonRetryable(err),
		"error", err,
	)
}

// extendLease periodically asks the broker to push out the ack deadline
// for as long as the job is still being processed.
func (w *Worker) extendLease(ctx context.Context, ackID string) {
	ticker := time.NewTicker(w.cfg.LeaseExtendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.queue.ModifyAckDeadline(ctx, w.cfg.Subscription, []string{ackID}, w.cfg.LeaseSeconds)
			if err != nil {
				slog.Warn("lease extension failed", "worker", w.cfg.Name, "ack_id", ackID, "error", err)
			}
		}
	}
}

func (w *Worker) ack(ctx context.Context, ackID string) {
	if err := w.queue.Acknowledge(ctx, w.cfg.Subscription, []string{ackID}); err != nil {
		slog.Warn("ack failed", "worker", w.cfg.Name, "ack_id", ackID, "error", err)
	}
}

func (w *Worker) publishAlert(ctx context.Context, job broker.JobPayload, m broker.Message, jobErr error, duration time.Duration) {
	if w.alerts == nil {
		return
	}

	severity := alert.SeverityError
	if job.Priority == broker.PriorityCritical {
		severity = alert.SeverityCritical
	}

	content := job.Content
	if len(content) > 200 {
		content = content[:200]
	}

	a := alert.Alert{
		JobID:         job.JobID,
		CorrelationID: job.CorrelationID,
		Timestamp:     time.Now().UTC(),
		Source:        w.cfg.Name,
		Severity:      severity,
		Category:      "job-failure",
		Title:         fmt.Sprintf("job %s failed on %s", job.JobID, w.cfg.Name),
		Message:       jobErr.Error(),
		Context: map[string]any{
			"message_id":  m.MessageID,
			"duration_ms": duration.Milliseconds(),
			"intent":      job.Intent,
			"content":     content,
			"priority":    string(job.Priority),
		},
	}

	if err := w.alerts.Publish(ctx, a); err != nil {
		slog.Warn("alert publish failed", "worker", w.cfg.Name, "job_id", job.JobID, "error", err)
	}
}

func (w *Worker) instrument(ctx context.Context, succeeded bool, duration time.Duration) {
	if w.instr == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("worker", w.cfg.Name))
	w.instr.JobsProcessed.Add(ctx, 1, attrs)
	if !succeeded {
		w.instr.JobsFailed.Add(ctx, 1, attrs)
	}
	w.instr.JobDuration.Record(ctx, duration.Seconds(), attrs)
}

// Stop flips the worker to draining, halts polling, and waits up to the
// drain timeout for in-flight jobs to finish. Jobs outliving the
// timeout are abandoned to broker redelivery, never force-killed.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = StateDraining
	close(w.stopCh)
	w.mu.Unlock()

	w.loopWG.Wait()

	deadline := time.Now().Add(w.cfg.DrainTimeout)
	for w.inflightCount() > 0 {
		if time.Now().After(deadline) {
			slog.Warn("drain timeout: abandoning jobs to broker redelivery",
				"worker", w.cfg.Name, "in_flight", w.inflightCount())
			break
		}
		select {
		case <-ctx.Done():
			slog.Warn("drain cancelled", "worker", w.cfg.Name, "in_flight", w.inflightCount())
		case <-time.After(50 * time.Millisecond):
		}
		if ctx.Err() != nil {
			break
		}
	}

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()

	slog.Info("worker stopped", "worker", w.cfg.Name)
	return ctx.Err()
}

// Status returns the current lifecycle state and circuit snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	state := w.state
	inflight := len(w.inflight)
	w.mu.Unlock()

	return Status{
		Name:      w.cfg.Name,
		State:     state,
		IsRunning: state == StateRunning,
		Circuit:   w.breaker.Status(w.cfg.CircuitID),
		InFlight:  inflight,
	}
}

// Metrics returns a snapshot of the worker's cumulative counters.
func (w *Worker) Metrics() MetricsSnapshot {
	return w.metrics.Snapshot()
}

func (w *Worker) inflightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

func (w *Worker) addLease(ackID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight[ackID] = lease{ackID: ackID, receivedAt: time.Now()}
}

func (w *Worker) setLeaseJob(ackID, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.inflight[ackID]; ok {
		l.jobID = jobID
		w.inflight[ackID] = l
	}
}

func (w *Worker) removeLease(ackID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, ackID)
}
