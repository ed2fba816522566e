package escrow

import (
	"errors"
	"fmt"

	"github.com/vreid/janken/internal/pkg/custody"
	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/registry"
	"github.com/vreid/janken/internal/pkg/verifier"
)

var (
	ErrMatchNotFound       = registry.ErrMatchNotFound
	ErrWrongState          = errors.New("wrong state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSelfJoin            = errors.New("initiator cannot join own match")
	ErrCommitmentMismatch  = errors.New("commitment mismatch")
	ErrProofRejected       = errors.New("proof rejected")
	ErrDeadlineExceeded    = errors.New("reveal deadline exceeded")
	ErrDeadlineNotReached  = errors.New("reveal deadline not reached")
	ErrAlreadyFinal        = errors.New("match already final")
	ErrAlreadyPaid         = errors.New("payout already issued")
	ErrInvalidStake        = errors.New("invalid stake")
	ErrConservation        = errors.New("payouts exceed deposits")
	ErrInvalidMove         = game.ErrInvalidMove
	ErrInvalidCommitment   = game.ErrInvalidCommitment
	ErrVerifierUnavailable = verifier.ErrUnavailable
	ErrInsufficientFunds   = custody.ErrInsufficientFunds
	ErrTransferFailed      = custody.ErrTransferFailed
)

// MatchError carries the operation and match a failure belongs to.
// MatchID is zero when no identifier was allocated yet.
type MatchError struct {
	Op      string
	MatchID uint64
	Err     error
}

func (e *MatchError) Error() string {
	if e.MatchID == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s match %d: %v", e.Op, e.MatchID, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

func matchError(op string, id uint64, err error) error {
	if err == nil {
		return nil
	}

	var existing *MatchError
	if errors.As(err, &existing) {
		return err
	}

	return &MatchError{Op: op, MatchID: id, Err: err}
}
