package escrow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	"github.com/vreid/janken/internal/pkg/custody"
	"github.com/vreid/janken/internal/pkg/events"
	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/registry"
	"github.com/vreid/janken/internal/pkg/verifier"
	"go.uber.org/zap"
)

// EscrowService runs the commit-reveal lifecycle of every match.
//
// No store transaction is held while custody, the verifier or an event sink
// is called. State changes and the payout flag are committed before the
// transfer they describe, and preconditions are checked again in the
// committing transaction, so collaborators may call back into the service.
type EscrowService struct {
	Store    Store
	Custody  custody.Custody
	Verifier verifier.Verifier
	Sink     events.Sink
	Logger   *zap.Logger

	RevealWindow time.Duration
}

func NewEscrowService(i do.Injector) (*EscrowService, error) {
	registryService := do.MustInvoke[*registry.RegistryService](i)
	ledgerService := do.MustInvoke[*custody.LedgerService](i)
	verifierService := do.MustInvoke[*verifier.VerifierService](i)
	eventsService := do.MustInvoke[*events.EventsService](i)
	loggerService := do.MustInvoke[*common.LoggerService](i)
	revealWindow := do.MustInvokeNamed[time.Duration](i, "reveal-window")

	return New(
		registryService,
		ledgerService,
		verifierService.Verifier,
		eventsService.Sink,
		loggerService.Logger,
		revealWindow,
	), nil
}

func New(
	store Store,
	custodian custody.Custody,
	v verifier.Verifier,
	sink events.Sink,
	logger *zap.Logger,
	revealWindow time.Duration,
) *EscrowService {
	if revealWindow <= 0 {
		revealWindow = DefaultRevealWindow
	}

	return &EscrowService{
		Store:        store,
		Custody:      custodian,
		Verifier:     v,
		Sink:         sink,
		Logger:       logger.Named("escrow"),
		RevealWindow: revealWindow,
	}
}

// CreateInputs is the statement a creation proof is checked against.
func CreateInputs(initiator, asset string, amount uint64, commitment game.Commitment) verifier.PublicInputs {
	return verifier.Inputs("create", initiator, asset).
		AppendUint(amount).
		Append(commitment[:])
}

// RevealInputs is the statement a reveal proof is checked against.
func RevealInputs(id uint64, commitment game.Commitment, move game.Move, nonce []byte) verifier.PublicInputs {
	return verifier.Inputs("reveal").
		AppendUint(id).
		Append(commitment[:], []byte(move.String()), nonce)
}

func (s *EscrowService) verify(ctx context.Context, proof []byte, inputs verifier.PublicInputs) error {
	valid, err := s.Verifier.Verify(ctx, proof, inputs)
	if err != nil {
		if errors.Is(err, ErrVerifierUnavailable) {
			return err
		}

		return fmt.Errorf("%w: %w", ErrVerifierUnavailable, err)
	}

	if !valid {
		return ErrProofRejected
	}

	return nil
}

// Create escrows the initiator's stake and opens a match bound to the commitment.
func (s *EscrowService) Create(ctx context.Context, env Env, req CreateRequest) (uint64, error) {
	const op = "create"

	switch {
	case env.Caller == "":
		return 0, matchError(op, 0, fmt.Errorf("%w: missing caller", ErrUnauthorized))
	case req.Asset == "":
		return 0, matchError(op, 0, fmt.Errorf("%w: missing asset", ErrInvalidStake))
	case req.Amount == 0 || req.Amount > math.MaxUint64/2:
		return 0, matchError(op, 0, fmt.Errorf("%w: amount %d out of range", ErrInvalidStake, req.Amount))
	case req.Commitment.IsZero():
		return 0, matchError(op, 0, fmt.Errorf("%w: empty commitment", ErrInvalidCommitment))
	}

	err := s.verify(ctx, req.Proof, CreateInputs(env.Caller, req.Asset, req.Amount, req.Commitment))
	if err != nil {
		return 0, matchError(op, 0, err)
	}

	err = s.Custody.Debit(ctx, env.Caller, req.Asset, req.Amount)
	if err != nil {
		return 0, matchError(op, 0, err)
	}

	id, err := s.Store.Insert(&registry.Match{
		Initiator:  env.Caller,
		Asset:      req.Asset,
		Amount:     req.Amount,
		Commitment: req.Commitment,
		State:      registry.OpenForOpponent,
		Deposited:  req.Amount,
		CreatedAt:  env.Now,
	})
	if err != nil {
		refundErr := s.Custody.Credit(ctx, env.Caller, req.Asset, req.Amount)
		if refundErr != nil {
			s.Logger.Error("failed to refund stake after create failure",
				zap.String("initiator", env.Caller),
				zap.String("asset", req.Asset),
				zap.Uint64("amount", req.Amount),
				zap.Error(refundErr))
		}

		return 0, matchError(op, 0, errors.Join(err, refundErr))
	}

	s.Logger.Info("match created",
		zap.Uint64("match_id", id),
		zap.String("initiator", env.Caller),
		zap.String("asset", req.Asset),
		zap.Uint64("amount", req.Amount))

	s.publish(ctx, env, events.MatchCreated, id, map[string]string{
		"initiator": env.Caller,
		"asset":     req.Asset,
		"amount":    strconv.FormatUint(req.Amount, 10),
	})

	return id, nil
}

// Join records the opponent's move in clear and escrows a matching stake.
func (s *EscrowService) Join(ctx context.Context, env Env, id uint64, move game.Move) error {
	const op = "join"

	if env.Caller == "" {
		return matchError(op, id, fmt.Errorf("%w: missing caller", ErrUnauthorized))
	}

	if !move.Valid() {
		return matchError(op, id, fmt.Errorf("%w: %d", ErrInvalidMove, uint8(move)))
	}

	joined, err := s.Store.Update(id, func(m *registry.Match) error {
		if m.State != registry.OpenForOpponent {
			return fmt.Errorf("%w: match is %s", ErrWrongState, m.State)
		}

		if env.Caller == m.Initiator {
			return ErrSelfJoin
		}

		deadline := env.Now.Add(s.RevealWindow)
		now := env.Now

		m.Opponent = env.Caller
		m.OpponentMove = &move
		m.RevealDeadline = &deadline
		m.JoinedAt = &now
		m.State = registry.AwaitingReveal

		return nil
	})
	if err != nil {
		return matchError(op, id, err)
	}

	err = s.Custody.Debit(ctx, env.Caller, joined.Asset, joined.Amount)
	if err != nil {
		rollbackErr := s.rollbackJoin(id, env.Caller)

		return matchError(op, id, errors.Join(err, rollbackErr))
	}

	_, err = s.Store.Update(id, func(m *registry.Match) error {
		if m.State != registry.AwaitingReveal || m.Opponent != env.Caller || m.OpponentStaked {
			return fmt.Errorf("%w: stake for %s no longer pending", registry.ErrIllegalTransition, env.Caller)
		}

		m.OpponentStaked = true
		m.Deposited += m.Amount

		return nil
	})
	if err != nil {
		s.Logger.Error("opponent stake collected but not recorded",
			zap.Uint64("match_id", id),
			zap.String("opponent", env.Caller),
			zap.Error(err))

		rollbackErr := s.rollbackJoin(id, env.Caller)

		refundErr := s.Custody.Credit(ctx, env.Caller, joined.Asset, joined.Amount)
		if refundErr != nil {
			s.Logger.Error("failed to refund opponent stake",
				zap.Uint64("match_id", id),
				zap.String("opponent", env.Caller),
				zap.Uint64("amount", joined.Amount),
				zap.Error(refundErr))
		}

		return matchError(op, id, errors.Join(err, rollbackErr, refundErr))
	}

	s.Logger.Info("match joined",
		zap.Uint64("match_id", id),
		zap.String("opponent", env.Caller),
		zap.Stringer("move", move),
		zap.Time("reveal_deadline", *joined.RevealDeadline))

	s.publish(ctx, env, events.MatchJoined, id, map[string]string{
		"opponent":        env.Caller,
		"move":            move.String(),
		"reveal_deadline": joined.RevealDeadline.UTC().Format(time.RFC3339),
	})

	return nil
}

// rollbackJoin reopens a match whose opponent stake could not be collected.
// The open index is keyed by id, so the match regains its original position.
func (s *EscrowService) rollbackJoin(id uint64, opponent string) error {
	_, err := s.Store.Update(id, func(m *registry.Match) error {
		if m.State != registry.AwaitingReveal || m.Opponent != opponent || m.OpponentStaked {
			return fmt.Errorf("%w: join by %s can no longer be undone", registry.ErrIllegalTransition, opponent)
		}

		m.Opponent = ""
		m.OpponentMove = nil
		m.RevealDeadline = nil
		m.JoinedAt = nil
		m.State = registry.OpenForOpponent

		return nil
	})
	if err != nil {
		s.Logger.Error("failed to roll back join", zap.Uint64("match_id", id), zap.Error(err))
	}

	return err
}

func checkReveal(m *registry.Match, env Env, req RevealRequest) error {
	if m.State != registry.AwaitingReveal || !m.OpponentStaked {
		return fmt.Errorf("%w: match is %s", ErrWrongState, m.State)
	}

	if env.Caller != m.Initiator {
		return fmt.Errorf("%w: only the initiator may reveal", ErrUnauthorized)
	}

	if env.Now.After(*m.RevealDeadline) {
		return fmt.Errorf("%w: deadline was %s", ErrDeadlineExceeded, m.RevealDeadline.UTC().Format(time.RFC3339))
	}

	if !game.VerifyCommitment(m.Commitment, req.Move, req.Nonce) {
		return ErrCommitmentMismatch
	}

	return nil
}

// RevealAndSettle opens the initiator's commitment and decides the winner.
// No funds move here.
func (s *EscrowService) RevealAndSettle(ctx context.Context, env Env, id uint64, req RevealRequest) error {
	const op = "reveal"

	if !req.Move.Valid() {
		return matchError(op, id, fmt.Errorf("%w: %d", ErrInvalidMove, uint8(req.Move)))
	}

	m, err := s.Store.Get(id)
	if err != nil {
		return matchError(op, id, err)
	}

	err = checkReveal(m, env, req)
	if err != nil {
		return matchError(op, id, err)
	}

	err = s.verify(ctx, req.Proof, RevealInputs(id, m.Commitment, req.Move, req.Nonce))
	if err != nil {
		return matchError(op, id, err)
	}

	var outcome game.Outcome

	settled, err := s.Store.Update(id, func(m *registry.Match) error {
		err := checkReveal(m, env, req)
		if err != nil {
			return err
		}

		outcome, err = game.Decide(req.Move, *m.OpponentMove)
		if err != nil {
			return err
		}

		move := req.Move
		m.InitiatorMove = &move

		return settle(m, env, registry.Revealed, outcome)
	})
	if err != nil {
		return matchError(op, id, err)
	}

	s.Logger.Info("match settled",
		zap.Uint64("match_id", id),
		zap.Stringer("initiator_move", req.Move),
		zap.Stringer("opponent_move", *settled.OpponentMove),
		zap.Stringer("outcome", outcome),
		zap.Stringp("winner", settled.Winner))

	attributes := map[string]string{
		"initiator":      settled.Initiator,
		"opponent":       settled.Opponent,
		"initiator_move": req.Move.String(),
		"opponent_move":  settled.OpponentMove.String(),
		"outcome":        outcome.String(),
	}

	// no winner attribute on a tie
	if settled.Winner != nil {
		attributes["winner"] = *settled.Winner
	}

	s.publish(ctx, env, events.MatchSettled, id, attributes)

	return nil
}

// Forfeit cancels a match nobody joined, or awards a timed-out match to the
// opponent, and disburses the result immediately.
func (s *EscrowService) Forfeit(ctx context.Context, env Env, id uint64) error {
	const op = "forfeit"

	var eventType string

	settled, err := s.Store.Update(id, func(m *registry.Match) error {
		switch m.State {
		case registry.OpenForOpponent:
			if env.Caller != m.Initiator {
				return fmt.Errorf("%w: only the initiator may cancel an open match", ErrUnauthorized)
			}

			eventType = events.MatchCancelled

			return settle(m, env, registry.Cancelled, game.Tie)
		case registry.AwaitingReveal:
			if !m.OpponentStaked {
				return fmt.Errorf("%w: opponent stake pending", ErrWrongState)
			}

			if !env.Now.After(*m.RevealDeadline) {
				return fmt.Errorf("%w: deadline is %s", ErrDeadlineNotReached, m.RevealDeadline.UTC().Format(time.RFC3339))
			}

			eventType = events.MatchTimedOut

			return settle(m, env, registry.TimedOut, game.Tie)
		case registry.Settled:
			return ErrAlreadyFinal
		default:
			return fmt.Errorf("%w: match is %s", ErrWrongState, m.State)
		}
	})
	if err != nil {
		return matchError(op, id, err)
	}

	s.Logger.Info("match forfeited",
		zap.Uint64("match_id", id),
		zap.String("resolution", string(settled.Resolution)),
		zap.String("caller", env.Caller),
		zap.Stringp("winner", settled.Winner))

	// The settlement is committed. A Withdraw that paid it out first does
	// not fail the forfeit.
	err = s.disburse(ctx, env, op, id)
	if errors.Is(err, ErrAlreadyPaid) {
		err = nil
	}

	s.publish(ctx, env, eventType, id, map[string]string{
		"caller":    env.Caller,
		"initiator": settled.Initiator,
		"opponent":  settled.Opponent,
		"winner":    *settled.Winner,
	})

	return err
}

// Withdraw pays out a settled match. A second call fails with ErrAlreadyPaid.
func (s *EscrowService) Withdraw(ctx context.Context, env Env, id uint64) error {
	return s.disburse(ctx, env, "withdraw", id)
}

// disburse marks every unpaid payout as paid and sets PayoutIssued before
// any credit is attempted. A failed credit reverts that payout and the ones
// after it, leaving the match settled and retryable.
func (s *EscrowService) disburse(ctx context.Context, env Env, op string, id uint64) error {
	var pending []int

	m, err := s.Store.Update(id, func(m *registry.Match) error {
		pending = nil

		if m.State != registry.Settled {
			return fmt.Errorf("%w: match is %s", ErrWrongState, m.State)
		}

		if m.PayoutIssued {
			return ErrAlreadyPaid
		}

		total := totalPayouts(m)
		if total > m.Deposited {
			return fmt.Errorf("%w: %d owed, %d deposited", ErrConservation, total, m.Deposited)
		}

		for idx := range m.Payouts {
			if !m.Payouts[idx].Paid {
				m.Payouts[idx].Paid = true
				pending = append(pending, idx)
			}
		}

		m.PayoutIssued = true

		return nil
	})
	if err != nil {
		return matchError(op, id, err)
	}

	for k, idx := range pending {
		payout := m.Payouts[idx]

		err := s.Custody.Credit(ctx, payout.To, m.Asset, payout.Amount)
		if err != nil {
			revertErr := s.revertPayouts(id, pending[k:])

			s.Logger.Error("payout failed",
				zap.Uint64("match_id", id),
				zap.String("to", payout.To),
				zap.Uint64("amount", payout.Amount),
				zap.Error(err))

			s.publish(ctx, env, events.PayoutFailed, id, map[string]string{
				"to":     payout.To,
				"amount": strconv.FormatUint(payout.Amount, 10),
				"error":  err.Error(),
			})

			if !errors.Is(err, ErrTransferFailed) {
				err = fmt.Errorf("%w: %w", ErrTransferFailed, err)
			}

			return matchError(op, id, errors.Join(err, revertErr))
		}

		s.Logger.Info("payout issued",
			zap.Uint64("match_id", id),
			zap.String("to", payout.To),
			zap.String("asset", m.Asset),
			zap.Uint64("amount", payout.Amount))

		s.publish(ctx, env, events.PayoutIssued, id, map[string]string{
			"to":     payout.To,
			"asset":  m.Asset,
			"amount": strconv.FormatUint(payout.Amount, 10),
		})
	}

	return nil
}

func (s *EscrowService) revertPayouts(id uint64, indexes []int) error {
	_, err := s.Store.Update(id, func(m *registry.Match) error {
		for _, idx := range indexes {
			m.Payouts[idx].Paid = false
		}

		m.PayoutIssued = false

		return nil
	})
	if err != nil {
		s.Logger.Error("failed to revert payout flags", zap.Uint64("match_id", id), zap.Error(err))
	}

	return err
}

func (s *EscrowService) Get(id uint64) (*registry.Match, error) {
	m, err := s.Store.Get(id)
	if err != nil {
		return nil, matchError("get", id, err)
	}

	return m, nil
}

// ListOpen returns the matches waiting for an opponent in creation order.
func (s *EscrowService) ListOpen() ([]uint64, error) {
	ids, err := s.Store.ListOpen()
	if err != nil {
		return nil, matchError("list", 0, err)
	}

	return ids, nil
}

func (s *EscrowService) publish(ctx context.Context, env Env, eventType string, id uint64, attributes map[string]string) {
	if s.Sink == nil {
		return
	}

	err := s.Sink.Publish(ctx, events.Event{
		Type:       eventType,
		MatchID:    id,
		Attributes: attributes,
		At:         env.Now,
	})
	if err != nil {
		s.Logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.Uint64("match_id", id),
			zap.Error(err))
	}
}
