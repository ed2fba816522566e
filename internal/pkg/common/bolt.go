package common

import (
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	RegistryMatchesBucket = "registry:matches"
	RegistryOpenBucket    = "registry:open"
	LedgerBalancesBucket  = "ledger:balances"
	LedgerJournalBucket   = "ledger:journal"
	ScorerCardsBucket     = "scorer:scorecards"
)

type DatabaseService struct {
	DB *bolt.DB
}

func NewDatabaseService(i do.Injector) (*DatabaseService, error) {
	dataDir := do.MustInvokeNamed[string](i, "data-dir")

	return OpenDatabase(dataDir)
}

func OpenDatabase(dataDir string) (*DatabaseService, error) {
	err := os.MkdirAll(dataDir, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create database path: %w", err)
	}

	dbPath := path.Join(dataDir, "janken.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{
			RegistryMatchesBucket,
			RegistryOpenBucket,
			LedgerBalancesBucket,
			LedgerJournalBucket,
			ScorerCardsBucket,
		} {
			_, err := tx.CreateBucketIfNotExists([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	return &DatabaseService{
		DB: db,
	}, nil
}

func (s *DatabaseService) Shutdown() error {
	//nolint:wrapcheck
	return s.DB.Close()
}

// Uint64ToBytes encodes big-endian so byte order matches numeric order in bucket cursors.
func Uint64ToBytes(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)

	return buf
}

func BytesToUint64(b []byte, _default uint64) uint64 {
	if len(b) != 8 {
		return _default
	}

	return binary.BigEndian.Uint64(b)
}
