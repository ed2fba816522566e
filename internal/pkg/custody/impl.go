package custody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	ErrBalancesBucketNotFound = errors.New("balances bucket doesn't exist")
	ErrJournalBucketNotFound  = errors.New("journal bucket doesn't exist")
)

// LedgerService is a development custody backend keeping balances in bbolt.
type LedgerService struct {
	DatabaseService *common.DatabaseService

	Clock  clock.Clock
	Logger *zap.Logger
}

func NewLedgerService(i do.Injector) (*LedgerService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	clockService := do.MustInvoke[*common.ClockService](i)
	loggerService := do.MustInvoke[*common.LoggerService](i)

	return NewLedger(databaseService, clockService.Clock, loggerService.Logger), nil
}

func NewLedger(databaseService *common.DatabaseService, clk clock.Clock, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		DatabaseService: databaseService,
		Clock:           clk,
		Logger:          logger.Named("ledger"),
	}
}

func balanceKey(asset, party string) []byte {
	return []byte(asset + "/" + party)
}

func validate(party, asset string, amount uint64) error {
	if party == "" || asset == "" || amount == 0 {
		return fmt.Errorf("%w: party=%q asset=%q amount=%d", ErrInvalidTransfer, party, asset, amount)
	}

	return nil
}

func (s *LedgerService) Deposit(_ context.Context, party string, asset string, amount uint64) error {
	err := validate(party, asset, amount)
	if err != nil {
		return err
	}

	return s.move(EntryDeposit, "", party, asset, amount)
}

func (s *LedgerService) Debit(_ context.Context, party string, asset string, amount uint64) error {
	err := validate(party, asset, amount)
	if err != nil {
		return err
	}

	return s.move(EntryDebit, party, EscrowAccount, asset, amount)
}

func (s *LedgerService) Credit(_ context.Context, party string, asset string, amount uint64) error {
	err := validate(party, asset, amount)
	if err != nil {
		return err
	}

	err = s.move(EntryCredit, EscrowAccount, party, asset, amount)
	if err != nil {
		s.Logger.Error("credit failed",
			zap.String("party", party),
			zap.String("asset", asset),
			zap.Uint64("amount", amount),
			zap.Error(err))

		if !errors.Is(err, ErrTransferFailed) {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	return err
}

// move transfers amount from one account to another; an empty from mints.
//
//nolint:cyclop
func (s *LedgerService) move(kind EntryKind, from, to, asset string, amount uint64) error {
	entryID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate journal id: %w", err)
	}

	entry := JournalEntry{
		ID:     entryID.String(),
		Kind:   kind,
		From:   from,
		To:     to,
		Asset:  asset,
		Amount: amount,
		At:     s.Clock.Now().UTC(),
	}

	err = s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		balances := tx.Bucket([]byte(common.LedgerBalancesBucket))
		if balances == nil {
			return ErrBalancesBucketNotFound
		}

		journal := tx.Bucket([]byte(common.LedgerJournalBucket))
		if journal == nil {
			return ErrJournalBucketNotFound
		}

		if from != "" {
			fromBalance := common.BytesToUint64(balances.Get(balanceKey(asset, from)), 0)
			if fromBalance < amount {
				if from == EscrowAccount {
					return fmt.Errorf("%w: escrow holds %d %s, need %d", ErrTransferFailed, fromBalance, asset, amount)
				}

				return fmt.Errorf("%w: %s holds %d %s, need %d", ErrInsufficientFunds, from, fromBalance, asset, amount)
			}

			err := balances.Put(balanceKey(asset, from), common.Uint64ToBytes(fromBalance-amount))
			if err != nil {
				return fmt.Errorf("failed to put %s balance: %w", from, err)
			}
		}

		toBalance := common.BytesToUint64(balances.Get(balanceKey(asset, to)), 0)
		if toBalance > math.MaxUint64-amount {
			return fmt.Errorf("%w: %s balance would overflow", ErrTransferFailed, to)
		}

		err := balances.Put(balanceKey(asset, to), common.Uint64ToBytes(toBalance+amount))
		if err != nil {
			return fmt.Errorf("failed to put %s balance: %w", to, err)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}

		key, err := entryID.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to encode journal key: %w", err)
		}

		err = journal.Put(key, data)
		if err != nil {
			return fmt.Errorf("failed to put journal entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.Logger.Debug("ledger movement",
		zap.String("kind", string(kind)),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("asset", asset),
		zap.Uint64("amount", amount))

	return nil
}

func (s *LedgerService) Balance(party string, asset string) (uint64, error) {
	var balance uint64

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		balances := tx.Bucket([]byte(common.LedgerBalancesBucket))
		if balances == nil {
			return ErrBalancesBucketNotFound
		}

		balance = common.BytesToUint64(balances.Get(balanceKey(asset, party)), 0)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// Journal returns every movement in the order it was recorded.
func (s *LedgerService) Journal() ([]JournalEntry, error) {
	result := []JournalEntry{}

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		journal := tx.Bucket([]byte(common.LedgerJournalBucket))
		if journal == nil {
			return ErrJournalBucketNotFound
		}

		return journal.ForEach(func(_, v []byte) error {
			var entry JournalEntry

			err := json.Unmarshal(v, &entry)
			if err != nil {
				return fmt.Errorf("failed to unmarshal journal entry: %w", err)
			}

			result = append(result, entry)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
