package escrow

import (
	"time"

	"github.com/vreid/janken/internal/pkg/game"
	"github.com/vreid/janken/internal/pkg/registry"
)

const DefaultRevealWindow = 30 * time.Minute

// Env is the identity and clock reading an operation runs under.
// Now is read once by the caller and used for every check in the call.
type Env struct {
	Caller string
	Now    time.Time
}

// Store is the match registry the engine drives.
type Store interface {
	Insert(m *registry.Match) (uint64, error)
	Get(id uint64) (*registry.Match, error)
	Update(id uint64, fn func(m *registry.Match) error) (*registry.Match, error)
	ListOpen() ([]uint64, error)
}

type CreateRequest struct {
	Asset      string
	Amount     uint64
	Commitment game.Commitment
	Proof      []byte
}

type RevealRequest struct {
	Move  game.Move
	Nonce []byte
	Proof []byte
}
