package custody

import (
	"context"
	"errors"
	"time"
)

const EscrowAccount = "escrow"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrInvalidTransfer   = errors.New("invalid transfer")
)

// Custody moves stakes between players and the escrow pool.
// Credit failures are fatal to the caller's bookkeeping and must be surfaced.
type Custody interface {
	Debit(ctx context.Context, party string, asset string, amount uint64) error
	Credit(ctx context.Context, party string, asset string, amount uint64) error
}

type EntryKind string

const (
	EntryDeposit EntryKind = "deposit"
	EntryDebit   EntryKind = "debit"
	EntryCredit  EntryKind = "credit"
)

type JournalEntry struct {
	ID     string    `json:"id"`
	Kind   EntryKind `json:"kind"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Asset  string    `json:"asset"`
	Amount uint64    `json:"amount"`
	At     time.Time `json:"at"`
}
