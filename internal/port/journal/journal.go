// Package journal defines the append-only audit journal port.
package journal

import (
	"context"

	"github.com/taskfleet/taskfleet/internal/domain/alert"
	"github.com/taskfleet/taskfleet/internal/domain/budget"
)

// Store is the port interface for durable audit records. Implementations
// are append-only; records are never updated or deleted.
type Store interface {
	// AppendTransaction journals one budget ledger transaction.
	AppendTransaction(ctx context.Context, sessionID string, tx budget.Transaction) error

	// AppendAlert journals one published alert.
	AppendAlert(ctx context.Context, a alert.Alert) error
}
