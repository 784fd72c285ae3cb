// Package budget defines the session budget ledger.
package budget

import (
	"time"

	"github.com/google/uuid"
)

// TxType classifies a ledger transaction.
type TxType string

const (
	TxReserve TxType = "reserve"
	TxSpend   TxType = "spend"
	TxRelease TxType = "release"
)

// Transaction is one append-only ledger entry.
type Transaction struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Type      TxType    `json:"type"`
	AmountUSD float64   `json:"amount_usd"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger tracks initial, spent, and reserved funds for one session's task
// tree. It is a plain value type owned by a single caller; concurrent
// access must be synchronized by the owner.
//
// Invariant after every operation: Spent + Reserved <= Initial,
// with Spent >= 0 and Reserved >= 0.
type Ledger struct {
	InitialUSD   float64       `json:"initial_usd"`
	SpentUSD     float64       `json:"spent_usd"`
	ReservedUSD  float64       `json:"reserved_usd"`
	Transactions []Transaction `json:"transactions"`
}

// NewLedger creates a ledger with the given initial funds.
func NewLedger(initialUSD float64) *Ledger {
	return &Ledger{InitialUSD: initialUSD}
}

// AvailableUSD returns the uncommitted, unreserved remainder.
func (l *Ledger) AvailableUSD() float64 {
	return l.InitialUSD - l.SpentUSD - l.ReservedUSD
}

// CanAfford reports whether amount fits inside the remaining budget.
func (l *Ledger) CanAfford(amount float64) bool {
	return l.AvailableUSD() >= amount
}

// Reserve appends a reserve transaction and increases the reserved total.
// It performs no affordability check; callers must consult CanAfford first.
// Reservation is the first phase of a reserve→commit pair, not a guarded
// allocator.
func (l *Ledger) Reserve(agent string, amount float64) Transaction {
	tx := l.append(agent, TxReserve, amount)
	l.ReservedUSD += amount
	return tx
}

// Commit settles a reservation: it appends a spend transaction for the
// actual amount, releases the full reservation, and refunds any unused
// difference with an additional release transaction. Committing zero
// actual spend is the only way to cancel a reservation.
func (l *Ledger) Commit(agent string, reserved, actual float64) []Transaction {
	txs := []Transaction{l.append(agent, TxSpend, actual)}
	l.ReservedUSD -= reserved
	if l.ReservedUSD < 0 {
		l.ReservedUSD = 0
	}
	l.SpentUSD += actual
	if actual < reserved {
		txs = append(txs, l.append(agent, TxRelease, reserved-actual))
	}
	return txs
}

func (l *Ledger) append(agent string, typ TxType, amount float64) Transaction {
	tx := Transaction{
		ID:        uuid.NewString(),
		Agent:     agent,
		Type:      typ,
		AmountUSD: amount,
		CreatedAt: time.Now().UTC(),
	}
	l.Transactions = append(l.Transactions, tx)
	return tx
}
