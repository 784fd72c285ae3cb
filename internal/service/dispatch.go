// Package service composes the domain layer into the dispatch,
// fleet, and alerting services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	fleetotel "github.com/taskfleet/taskfleet/internal/adapter/otel"
	"github.com/taskfleet/taskfleet/internal/domain"
	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/domain/budget"
	"github.com/taskfleet/taskfleet/internal/domain/dispatch"
	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/port/journal"
	"github.com/taskfleet/taskfleet/internal/port/toolregistry"
	"github.com/taskfleet/taskfleet/internal/route"
)

// defaultJobCostUSD is reserved when the caller gives no estimate.
const defaultJobCostUSD = 0.50

// DispatchRequest is one task submission.
type DispatchRequest struct {
	SessionID        string                `json:"session_id"`
	CorrelationID    string                `json:"correlation_id,omitempty"`
	Intent           string                `json:"intent"`
	Content          string                `json:"content"`
	Attachments      []dispatch.Attachment `json:"attachments,omitempty"`
	Parameters       map[string]string     `json:"parameters,omitempty"`
	Priority         broker.Priority       `json:"priority,omitempty"`
	ForcedRole       string                `json:"forced_role,omitempty"`
	EstimatedCostUSD float64               `json:"estimated_cost_usd,omitempty"`
}

// DispatchResult reports where a task went and what was reserved for it.
type DispatchResult struct {
	JobID         string            `json:"job_id"`
	CorrelationID string            `json:"correlation_id"`
	Decision      dispatch.Decision `json:"decision"`
	ReservedUSD   float64           `json:"reserved_usd"`
}

type reservation struct {
	sessionID string
	role      string
	amount    float64
}

// DispatchService routes tasks to agent roles, reserves session budget,
// and publishes jobs to the broker. The tool store, journal, and
// instruments may be nil.
type DispatchService struct {
	router   *route.Router
	registry *agent.Registry
	queue    broker.Broker
	tools    toolregistry.Store
	journal  journal.Store
	instr    *fleetotel.Metrics

	sessionBudgetUSD float64

	mu           sync.Mutex
	sessions     map[string]*budget.Ledger
	reservations map[string]reservation
}

// NewDispatchService creates the dispatch service. Each new session gets
// a ledger funded with sessionBudgetUSD.
func NewDispatchService(router *route.Router, registry *agent.Registry, queue broker.Broker, sessionBudgetUSD float64) *DispatchService {
	return &DispatchService{
		router:           router,
		registry:         registry,
		queue:            queue,
		sessionBudgetUSD: sessionBudgetUSD,
		sessions:         make(map[string]*budget.Ledger),
		reservations:     make(map[string]reservation),
	}
}

// SetToolStore attaches the tool enablement store consulted per role.
func (s *DispatchService) SetToolStore(store toolregistry.Store) { s.tools = store }

// SetJournal attaches the audit journal for ledger transactions.
func (s *DispatchService) SetJournal(j journal.Store) { s.journal = j }

// SetInstruments attaches OpenTelemetry instruments.
func (s *DispatchService) SetInstruments(m *fleetotel.Metrics) { s.instr = m }

// Route classifies a request without side effects. No budget is
// reserved and nothing is published.
func (s *DispatchService) Route(req DispatchRequest) dispatch.Decision {
	if req.ForcedRole != "" {
		return s.router.ForceRoute(agent.Role(req.ForcedRole))
	}
	return s.router.Route(dispatch.TaskPayload{
		Intent:      req.Intent,
		Content:     req.Content,
		Attachments: req.Attachments,
		Parameters:  req.Parameters,
	})
}

// Dispatch routes the request, reserves budget on the session ledger,
// and publishes the job to the selected role's subject. The reservation
// is settled later by Complete.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if req.SessionID == "" {
		return DispatchResult{}, fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	if req.Content == "" {
		return DispatchResult{}, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if req.Priority == "" {
		req.Priority = broker.PriorityNormal
	}

	decision := s.Route(req)
	role := string(decision.SelectedAgent)
	profile, ok := s.registry.Get(agent.Role(role))
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: agent role %q", domain.ErrNotFound, role)
	}

	if err := s.checkRoleEnabled(ctx, role); err != nil {
		return DispatchResult{}, err
	}
	if profile.RequiresProofGate && req.Parameters["proof_token"] == "" {
		return DispatchResult{}, fmt.Errorf("%w: role %q requires a proof token", domain.ErrValidation, role)
	}

	amount := req.EstimatedCostUSD
	if amount <= 0 {
		amount = defaultJobCostUSD
	}
	if amount > profile.BudgetCapUSD {
		amount = profile.BudgetCapUSD
	}

	jobID := uuid.NewString()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	tx, err := s.reserve(req.SessionID, role, amount)
	if err != nil {
		return DispatchResult{}, err
	}
	s.journalTx(ctx, req.SessionID, tx)

	payload := broker.JobPayload{
		JobID:         jobID,
		CorrelationID: correlationID,
		SessionID:     req.SessionID,
		Role:          role,
		Priority:      req.Priority,
		Intent:        req.Intent,
		Content:       req.Content,
		Parameters:    req.Parameters,
		ReservedUSD:   amount,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.release(ctx, jobID, req.SessionID, role, amount)
		return DispatchResult{}, fmt.Errorf("marshal job payload: %w", err)
	}

	subject := broker.JobSubject(role)
	if err := broker.Validate(subject, data); err != nil {
		s.release(ctx, jobID, req.SessionID, role, amount)
		return DispatchResult{}, fmt.Errorf("validate job payload: %w", err)
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.release(ctx, jobID, req.SessionID, role, amount)
		return DispatchResult{}, fmt.Errorf("publish job: %w", err)
	}

	s.mu.Lock()
	s.reservations[jobID] = reservation{sessionID: req.SessionID, role: role, amount: amount}
	s.mu.Unlock()

	if s.instr != nil {
		s.instr.RoutesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
	}

	slog.Info("job dispatched",
		"job_id", jobID,
		"session_id", req.SessionID,
		"role", role,
		"confidence", decision.Confidence,
		"reserved_usd", amount,
	)

	return DispatchResult{
		JobID:         jobID,
		CorrelationID: correlationID,
		Decision:      decision,
		ReservedUSD:   amount,
	}, nil
}

// Complete settles the job's reservation against the actual cost.
// Unknown job ids are rejected; double completion is therefore safe.
func (s *DispatchService) Complete(ctx context.Context, jobID string, actualUSD float64) error {
	s.mu.Lock()
	res, ok := s.reservations[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: no reservation for job %q", domain.ErrNotFound, jobID)
	}
	delete(s.reservations, jobID)
	ledger := s.ledgerLocked(res.sessionID)
	txs := ledger.Commit(res.role, res.amount, actualUSD)
	s.mu.Unlock()

	for _, tx := range txs {
		s.journalTx(ctx, res.sessionID, tx)
	}
	if s.instr != nil {
		s.instr.BudgetSpend.Record(ctx, actualUSD,
			metric.WithAttributes(attribute.String("role", res.role)))
	}

	slog.Info("job completed",
		"job_id", jobID,
		"session_id", res.sessionID,
		"reserved_usd", res.amount,
		"actual_usd", actualUSD,
	)
	return nil
}

// SessionBudget returns a copy of the session's ledger totals.
func (s *DispatchService) SessionBudget(sessionID string) (budget.Ledger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[sessionID]
	if !ok {
		return budget.Ledger{}, false
	}
	return *l, true
}

func (s *DispatchService) checkRoleEnabled(ctx context.Context, role string) error {
	if s.tools == nil {
		return nil
	}
	enabled, err := s.tools.Enabled(ctx, toolregistry.RoleKey(role))
	if err != nil {
		// Registry lookup failure must not block dispatch.
		slog.Warn("tool registry lookup failed", "role", role, "error", err)
		return nil
	}
	if !enabled {
		return fmt.Errorf("%w: agent role %q is disabled", domain.ErrValidation, role)
	}
	return nil
}

// reserve checks affordability and reserves atomically under the
// service lock; the ledger itself never guards Reserve.
func (s *DispatchService) reserve(sessionID, role string, amount float64) (budget.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger := s.ledgerLocked(sessionID)
	if !ledger.CanAfford(amount) {
		return budget.Transaction{}, fmt.Errorf("%w: need %.2f USD, %.2f available",
			domain.ErrBudgetExceeded, amount, ledger.AvailableUSD())
	}
	return ledger.Reserve(role, amount), nil
}

// release backs out a reservation after a failed publish by committing
// zero actual spend.
func (s *DispatchService) release(ctx context.Context, jobID, sessionID, role string, amount float64) {
	s.mu.Lock()
	ledger := s.ledgerLocked(sessionID)
	txs := ledger.Commit(role, amount, 0)
	s.mu.Unlock()
	for _, tx := range txs {
		s.journalTx(ctx, sessionID, tx)
	}
	slog.Warn("reservation released after publish failure", "job_id", jobID, "session_id", sessionID)
}

func (s *DispatchService) ledgerLocked(sessionID string) *budget.Ledger {
	l, ok := s.sessions[sessionID]
	if !ok {
		l = budget.NewLedger(s.sessionBudgetUSD)
		s.sessions[sessionID] = l
	}
	return l
}

func (s *DispatchService) journalTx(ctx context.Context, sessionID string, tx budget.Transaction) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AppendTransaction(ctx, sessionID, tx); err != nil {
		slog.Warn("journal transaction failed", "session_id", sessionID, "tx_id", tx.ID, "error", err)
	}
}
