package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskfleet/taskfleet/internal/domain/alert"
	"github.com/taskfleet/taskfleet/internal/domain/budget"
)

// Journal implements journal.Store using PostgreSQL (append-only).
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// AppendTransaction inserts one ledger transaction.
func (j *Journal) AppendTransaction(ctx context.Context, sessionID string, tx budget.Transaction) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO budget_transactions (id, session_id, agent, tx_type, amount_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, sessionID, tx.Agent, string(tx.Type), tx.AmountUSD, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// AppendAlert inserts one published alert.
func (j *Journal) AppendAlert(ctx context.Context, a alert.Alert) error {
	contextJSON, err := json.Marshal(a.Context)
	if err != nil {
		return fmt.Errorf("marshal alert context: %w", err)
	}
	_, err = j.pool.Exec(ctx,
		`INSERT INTO alerts (job_id, correlation_id, source, severity, category, title, message, context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.JobID, a.CorrelationID, a.Source, string(a.Severity), a.Category, a.Title, a.Message, contextJSON, a.Timestamp)
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// SessionTransactions returns a session's journal entries in order.
func (j *Journal) SessionTransactions(ctx context.Context, sessionID string) ([]budget.Transaction, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, agent, tx_type, amount_usd, created_at
		 FROM budget_transactions WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transactions for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var txs []budget.Transaction
	for rows.Next() {
		var tx budget.Transaction
		if err := rows.Scan(&tx.ID, &tx.Agent, &tx.Type, &tx.AmountUSD, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
