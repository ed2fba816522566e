package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrIllegalTransition      = errors.New("illegal match transition")
	ErrMatchesBucketNotFound  = errors.New("matches bucket doesn't exist")
	ErrOpenIndexBucketMissing = errors.New("open index bucket doesn't exist")
)

// RegistryService owns every Match record and the index of matches open for an opponent.
type RegistryService struct {
	DatabaseService *common.DatabaseService
}

func NewRegistryService(i do.Injector) (*RegistryService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return NewRegistry(databaseService), nil
}

func NewRegistry(databaseService *common.DatabaseService) *RegistryService {
	return &RegistryService{
		DatabaseService: databaseService,
	}
}

func buckets(tx *bolt.Tx) (*bolt.Bucket, *bolt.Bucket, error) {
	matches := tx.Bucket([]byte(common.RegistryMatchesBucket))
	if matches == nil {
		return nil, nil, ErrMatchesBucketNotFound
	}

	open := tx.Bucket([]byte(common.RegistryOpenBucket))
	if open == nil {
		return nil, nil, ErrOpenIndexBucketMissing
	}

	return matches, open, nil
}

func load(matches *bolt.Bucket, id uint64) (*Match, error) {
	data := matches.Get(common.Uint64ToBytes(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}

	var m Match

	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal match %d: %w", id, err)
	}

	return &m, nil
}

// store writes the record and keeps the open index in step with its state.
func store(matches, open *bolt.Bucket, m *Match) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal match %d: %w", m.ID, err)
	}

	key := common.Uint64ToBytes(m.ID)

	err = matches.Put(key, data)
	if err != nil {
		return fmt.Errorf("failed to put match %d: %w", m.ID, err)
	}

	if m.State == OpenForOpponent {
		err = open.Put(key, []byte{})
	} else {
		err = open.Delete(key)
	}

	if err != nil {
		return fmt.Errorf("failed to update open index for match %d: %w", m.ID, err)
	}

	return nil
}

// Insert allocates the next identifier and stores m as open for an opponent.
func (s *RegistryService) Insert(m *Match) (uint64, error) {
	var id uint64

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		matches, open, err := buckets(tx)
		if err != nil {
			return err
		}

		id, err = matches.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate match id: %w", err)
		}

		record := m.Clone()
		record.ID = id
		record.State = OpenForOpponent

		return store(matches, open, record)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *RegistryService) Get(id uint64) (*Match, error) {
	var result *Match

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		matches, _, err := buckets(tx)
		if err != nil {
			return err
		}

		result, err = load(matches, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Update applies fn to the stored match inside one transaction. Nothing is
// written when fn returns an error or the result breaks a record invariant.
func (s *RegistryService) Update(id uint64, fn func(m *Match) error) (*Match, error) {
	var result *Match

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		matches, open, err := buckets(tx)
		if err != nil {
			return err
		}

		before, err := load(matches, id)
		if err != nil {
			return err
		}

		after := before.Clone()

		err = fn(after)
		if err != nil {
			return err
		}

		err = checkTransition(before, after)
		if err != nil {
			return err
		}

		result = after

		return store(matches, open, after)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListOpen returns the ids of matches waiting for an opponent in creation order.
func (s *RegistryService) ListOpen() ([]uint64, error) {
	result := []uint64{}

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		_, open, err := buckets(tx)
		if err != nil {
			return err
		}

		return open.ForEach(func(k, _ []byte) error {
			result = append(result, common.BytesToUint64(k, 0))

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

//nolint:cyclop
func checkTransition(before, after *Match) error {
	fail := func(reason string) error {
		return fmt.Errorf("%w: match %d: %s", ErrIllegalTransition, before.ID, reason)
	}

	if after.ID != before.ID ||
		after.Initiator != before.Initiator ||
		after.Asset != before.Asset ||
		after.Amount != before.Amount ||
		after.Commitment != before.Commitment {
		return fail("immutable field changed")
	}

	switch before.State {
	case OpenForOpponent:
		if after.State == OpenForOpponent && after.Opponent != "" {
			return fail("opponent recorded on open match")
		}
	case AwaitingReveal:
		if after.State == OpenForOpponent && before.OpponentStaked {
			return fail("cannot reopen a funded match")
		}
	case Settled:
		if after.State != Settled {
			return fail("settled is terminal")
		}

		if after.Resolution != before.Resolution || !sameWinner(before.Winner, after.Winner) {
			return fail("winner is already final")
		}
	}

	if after.State == Settled && after.Resolution == Unresolved {
		return fail("settled without resolution")
	}

	if after.State != Settled && (after.Winner != nil || after.PayoutIssued) {
		return fail("winner or payout recorded before settlement")
	}

	return nil
}

func sameWinner(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
